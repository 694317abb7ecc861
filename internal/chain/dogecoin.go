package chain

func init() {
	// Dogecoin Mainnet
	Register(Mainnet, &Params{
		Name: "Dogecoin",
		Net:  Mainnet,

		Magic:       0xC0C0C0C0,
		DefaultPort: 22556,
		Services:    0, // non-serving wallet node

		DNSSeeds: []string{
			"seed.dogecoin.com",
			"seed.multidoge.org",
			"seed2.multidoge.org",
			"seed.doger.dogecoin.com",
		},

		// Mainnet address prefixes
		PubKeyHashAddrID: 0x1E, // D...
		ScriptHashAddrID: 0x16, // 9 or A
		WIF:              0x9E,

		// BIP32 HD key prefixes (dgpv/dgub)
		HDPrivateKeyID: [4]byte{0x02, 0xFA, 0xC3, 0x98}, // dgpv
		HDPublicKeyID:  [4]byte{0x02, 0xFA, 0xCA, 0xFD}, // dgub

		// BIP44 coin type 3
		CoinType: 3,
	})

	// Dogecoin Testnet
	Register(Testnet, &Params{
		Name: "Dogecoin Testnet",
		Net:  Testnet,

		Magic:       0xDCB7C1FC,
		DefaultPort: 44556,
		Services:    0,

		DNSSeeds: []string{
			"testseed.jrn.me.uk",
			"testnet-seed.dogecoin.com",
			"testnet-seed.multidoge.org",
			"testnet-dnsseed.dogecoin.org",
		},

		PubKeyHashAddrID: 0x71, // n...
		ScriptHashAddrID: 0xC4,
		WIF:              0xF1,

		HDPrivateKeyID: [4]byte{0x04, 0x32, 0xA2, 0x43},
		HDPublicKeyID:  [4]byte{0x04, 0x32, 0xA9, 0xA8},

		CoinType: 1,
	})
}
