package stacks

// TestMnemonic is the BIP39 all-"abandon" test phrase. It is a public
// test vector and must never hold funds.
const TestMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon art"
