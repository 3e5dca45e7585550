package crypto

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"runtime"
	"time"

	"cosmossdk.io/log"
	"golang.org/x/sync/errgroup"
)

// DefaultProgressInterval is the default spacing of StageWorking progress
// notifications during asynchronous generation.
const DefaultProgressInterval = 250 * time.Millisecond

// ProgressStage identifies a point in an asynchronous generation.
type ProgressStage int

const (
	// StageResolved is reported once the algorithm and keysize resolved.
	StageResolved ProgressStage = iota
	// StageGenerating is reported when the primitive starts drawing key material.
	StageGenerating
	// StageWorking is reported periodically while the primitive runs.
	StageWorking
	// StageComplete is reported after the key pair is assembled, before the
	// result is delivered.
	StageComplete
)

// String returns a lower-case stage name.
func (s ProgressStage) String() string {
	switch s {
	case StageResolved:
		return "resolved"
	case StageGenerating:
		return "generating"
	case StageWorking:
		return "working"
	case StageComplete:
		return "complete"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Progress is an informational notification from asynchronous generation.
type Progress struct {
	Algorithm Algorithm
	KeySize   int
	Stage     ProgressStage
	Elapsed   time.Duration
}

// ProgressFunc receives progress notifications. Calls for one generation are
// made sequentially from a single goroutine.
type ProgressFunc func(Progress)

// GenerateResult is the single outcome of an asynchronous generation.
// Exactly one of KeyPair and Err is set.
type GenerateResult struct {
	KeyPair *KeyPair
	Err     error
}

// KeySpec names one key pair to generate.
type KeySpec struct {
	Algorithm Algorithm
	KeySize   int
}

// Generator creates key pairs. It holds no mutable state after construction
// and is safe for concurrent use.
type Generator struct {
	logger           log.Logger
	random           io.Reader
	progressInterval time.Duration
	concurrency      int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithRandom sets the entropy source for RS and DS key material.
// Defaults to crypto/rand.Reader. ES keys always draw from crypto/rand.
func WithRandom(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.random = r
	}
}

// WithProgressInterval sets the spacing of StageWorking notifications.
// Zero or negative disables them.
func WithProgressInterval(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.progressInterval = d
	}
}

// WithConcurrency bounds the number of key pairs GenerateMany builds at once.
// Defaults to GOMAXPROCS.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) {
		g.concurrency = n
	}
}

// NewGenerator creates a Generator with the given options.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		logger:           log.NewNopLogger(),
		random:           rand.Reader,
		progressInterval: DefaultProgressInterval,
		concurrency:      runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.NewNopLogger()
	}
	if g.random == nil {
		g.random = rand.Reader
	}
	if g.concurrency <= 0 {
		g.concurrency = 1
	}
	return g
}

// Generate blocks until a fresh key pair for (alg, keySize) is ready.
// Unsupported inputs fail with ErrUnsupportedAlgorithm before any key
// material is computed.
func (g *Generator) Generate(alg Algorithm, keySize int) (*KeyPair, error) {
	p, err := g.resolve(alg, keySize)
	if err != nil {
		return nil, err
	}
	return g.generate(p)
}

// GenerateAsync starts generation and returns immediately. The returned
// channel yields exactly one GenerateResult and is then closed.
//
// onProgress may be nil. Every progress call happens before the result is
// sent. Unsupported inputs are detected before any goroutine starts and
// delivered as the result.
//
// Cancelling ctx is best effort: the result becomes ctx.Err() and the key
// material the primitive finishes with is zeroized and discarded. A nil ctx
// is treated as context.Background().
func (g *Generator) GenerateAsync(ctx context.Context, alg Algorithm, keySize int, onProgress ProgressFunc) <-chan GenerateResult {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make(chan GenerateResult, 1)

	p, err := g.resolve(alg, keySize)
	if err != nil {
		out <- GenerateResult{Err: err}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		out <- g.generateWithProgress(ctx, p, onProgress)
	}()
	return out
}

// GenerateWithCallback is the callback form of GenerateAsync. onComplete is
// invoked exactly once, from a goroutine owned by the generator, after every
// progress notification.
func (g *Generator) GenerateWithCallback(ctx context.Context, alg Algorithm, keySize int,
	onProgress ProgressFunc, onComplete func(*KeyPair, error)) {
	results := g.GenerateAsync(ctx, alg, keySize, onProgress)
	go func() {
		res := <-results
		if onComplete != nil {
			onComplete(res.KeyPair, res.Err)
		}
	}()
}

// GenerateMany generates one key pair per spec, in parallel up to the
// configured concurrency. All specs are resolved before any generation
// starts. On the first failure the remaining work is cancelled, every pair
// already built is zeroized, and the error is returned. A nil ctx is treated
// as context.Background().
func (g *Generator) GenerateMany(ctx context.Context, specs []KeySpec) ([]*KeyPair, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	params := make([]*Params, len(specs))
	for i, spec := range specs {
		p, err := g.resolve(spec.Algorithm, spec.KeySize)
		if err != nil {
			return nil, fmt.Errorf("spec %d: %w", i, err)
		}
		params[i] = p
	}

	pairs := make([]*KeyPair, len(specs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, p := range params {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			kp, err := g.generate(p)
			if err != nil {
				return fmt.Errorf("spec %d: %w", i, err)
			}
			pairs[i] = kp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		for _, kp := range pairs {
			if kp != nil {
				kp.SecretKey().Zeroize()
			}
		}
		return nil, err
	}
	return pairs, nil
}

func (g *Generator) resolve(alg Algorithm, keySize int) (*Params, error) {
	p, err := Resolve(alg, keySize)
	if err != nil {
		observeKeygenFailure(alg, "unsupported")
		g.logger.Debug("rejected key generation request", "algorithm", string(alg), "keysize", keySize, "err", err)
		return nil, err
	}
	return p, nil
}

func (g *Generator) generate(p *Params) (*KeyPair, error) {
	start := time.Now()
	sk, err := p.family.generate(p, g.random)
	if err != nil {
		observeKeygenFailure(p.algorithm, "primitive")
		g.logger.Error("key generation failed", "algorithm", p.algorithm.String(), "keysize", p.keySize, "err", err)
		return nil, err
	}
	elapsed := time.Since(start)
	observeKeygen(p, elapsed.Seconds())
	g.logger.Debug("generated key pair", "algorithm", p.algorithm.String(), "keysize", p.keySize, "duration", elapsed)
	return newKeyPair(p, sk), nil
}

// generateWithProgress runs the primitive on its own goroutine and reports
// progress from the calling goroutine until the primitive returns or ctx is
// done.
func (g *Generator) generateWithProgress(ctx context.Context, p *Params, onProgress ProgressFunc) GenerateResult {
	start := time.Now()
	report := func(stage ProgressStage) {
		if onProgress != nil {
			onProgress(Progress{
				Algorithm: p.algorithm,
				KeySize:   p.keySize,
				Stage:     stage,
				Elapsed:   time.Since(start),
			})
		}
	}

	report(StageResolved)
	if err := ctx.Err(); err != nil {
		observeKeygenFailure(p.algorithm, "canceled")
		return GenerateResult{Err: err}
	}

	done := make(chan GenerateResult, 1)
	go func() {
		kp, err := g.generate(p)
		done <- GenerateResult{KeyPair: kp, Err: err}
	}()

	var tick <-chan time.Time
	if onProgress != nil && g.progressInterval > 0 {
		ticker := time.NewTicker(g.progressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	report(StageGenerating)
	for {
		select {
		case res := <-done:
			if res.Err == nil {
				report(StageComplete)
			}
			return res
		case <-tick:
			report(StageWorking)
		case <-ctx.Done():
			observeKeygenFailure(p.algorithm, "canceled")
			g.logger.Info("key generation cancelled", "algorithm", p.algorithm.String(), "keysize", p.keySize)
			go discardResult(done)
			return GenerateResult{Err: ctx.Err()}
		}
	}
}

// discardResult waits for an abandoned generation and wipes its secret key.
func discardResult(done <-chan GenerateResult) {
	res := <-done
	if res.KeyPair != nil {
		res.KeyPair.SecretKey().Zeroize()
	}
}

var defaultGenerator = NewGenerator()

// GenerateKeyPair generates a key pair with the default Generator.
func GenerateKeyPair(alg Algorithm, keySize int) (*KeyPair, error) {
	return defaultGenerator.Generate(alg, keySize)
}

// GenerateKeyPairAsync generates a key pair asynchronously with the default
// Generator. See Generator.GenerateAsync.
func GenerateKeyPairAsync(ctx context.Context, alg Algorithm, keySize int, onProgress ProgressFunc) <-chan GenerateResult {
	return defaultGenerator.GenerateAsync(ctx, alg, keySize, onProgress)
}
