package crypto

import (
	"crypto/dsa" //nolint:staticcheck // DSA is one of the supported key families.
	"math/big"
)

// Fixed DSA domain parameters. Every DS key of a given keysize class shares
// its group; generating a key only draws the secret exponent. The groups were
// produced with the FIPS 186-4 probable-prime construction and are public.
var (
	// dsaGroup1024 is the L=1024, N=160 group used by DS keysize 128.
	dsaGroup1024 = mustDSAGroup(
		"c48703895256c7a27e330c95365cd3a16041394d52f2d48c51c2e8ef886a147658213ce45c62501fbc1d46d93c28c968"+
			"a02158d8c77868b85409870f78a40cabd430c3dc746648e456c6cf83ec5bbc370178b81da57d5f60a31bef1b64388078"+
			"dd180ae2f49e118346196ee63aa721a979476ec19d9fda398b7213c2f531224d",
		"ee22b45d5404c4026a521789633d2747ccb72951",
		"27b6e68f7fc9346fa71682506298196c66aa5c4c4915223b064c925c9f01c422547797b9c0f01db6db839109cb959e6b"+
			"5540d21685da94a489287bf9fe8f9a528ff8c4f83c40704803b82087625ae5bf012407986b73aebd8c467d54ae418215"+
			"f46a9eb6f419aae73e742d66b41783bd3b914a9779dff8d78ef52299747156c4",
	)

	// dsaGroup2048 is the L=2048, N=256 group used by DS keysize 256.
	dsaGroup2048 = mustDSAGroup(
		"8009b15d0f1335fa3c114243ecadf8be6263d5aa21f77640f032e90850b409ef22a1c726209d7021cac442a9a448a294"+
			"41f159442ed6af9ad21748f855525f63aa31b7f49bd5c01e6f0998b7b0ec02ae5e91c0d935b94de7fe72aad144c97402"+
			"6d52b12f07c67e7c1c9ea43321c1cbf87fcf864950d47cfb7b4e6553f169cf7f42c5523742d247d5373bb33ae6f73c44"+
			"5903803504f0c0a7fde21351d84dc578c9735b99af9eb5663cdd956293b272b89cd09bf01941718ff54f13ad7a6c3884"+
			"369f1d7ddd7047cf73c95162220fc1189132138559cf76efcfc8b9bfffa9866e4fb9bd6b1f754780356f19f92098b93c"+
			"382c3790406bd7d65bbd1059b2378fc7",
		"f9fa1eeaba3736c0097494c011e18ce3f672437003b09beb26951730c99fc4d9",
		"45879da2dc4b9230b2fbae7dadf03fac2761209727e923768f497a2758c795fc63379989329adecab3ce2b6cf8d34604"+
			"3725a749b59c371f6d2a75e2780ff2d61422c7d4bcf58571442bb89ce2a942b7cd272c26d7aa3ea9870f7da6bcd6c35d"+
			"1a73d1dfa7ae24d94df2b0a5a3a93b5658237aff7daf804b18d7702338b717984c43ff77f0677b8ce841a358e7d19f15"+
			"e252b3e14b20d1aa24742bbdc7a50dc990b3d6ef0c239b4afbf81020eeec3d3b1b5fc8b7b2ed198f91ce27dffbb34039"+
			"908b3c79b901bdaae4ee1585042b53a5ccbaa34df2859084178b7e3f4a24f5ed7a6a011c9c16795debddf26845e9484d"+
			"b686379d5910dafcf7d15cc4a94b1db6",
	)
)

func mustDSAGroup(p, q, g string) *dsa.Parameters {
	return &dsa.Parameters{
		P: mustHexInt(p),
		Q: mustHexInt(q),
		G: mustHexInt(g),
	}
}

func mustHexInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("crypto: invalid hex constant")
	}
	return n
}

// sameDSAGroup reports whether a decoded (p, q, g) triple is the group g.
func sameDSAGroup(group *dsa.Parameters, p, q, g *big.Int) bool {
	return group.P.Cmp(p) == 0 && group.Q.Cmp(q) == 0 && group.G.Cmp(g) == 0
}
