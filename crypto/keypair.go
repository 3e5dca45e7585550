package crypto

// KeyPair holds a public key and the secret key it belongs to. Both share the
// same algorithm and keysize. Only a Generator creates key pairs, and a pair
// is never modified after creation.
type KeyPair struct {
	params    *Params
	publicKey PublicKey
	secretKey SecretKey
}

func newKeyPair(p *Params, sk SecretKey) *KeyPair {
	return &KeyPair{
		params:    p,
		publicKey: sk.PublicKey(),
		secretKey: sk,
	}
}

// Algorithm returns the algorithm code shared by both keys.
func (kp *KeyPair) Algorithm() Algorithm { return kp.params.algorithm }

// KeySize returns the keysize class shared by both keys.
func (kp *KeyPair) KeySize() int { return kp.params.keySize }

// Params returns the registry parameters the pair was generated for.
func (kp *KeyPair) Params() *Params { return kp.params }

// PublicKey returns the public key.
func (kp *KeyPair) PublicKey() PublicKey { return kp.publicKey }

// SecretKey returns the secret key.
func (kp *KeyPair) SecretKey() SecretKey { return kp.secretKey }

// String describes the pair without secret material.
func (kp *KeyPair) String() string {
	return kp.params.String() + " key pair"
}
