package store

// Key prefixes
const (
	FARMING byte = 0x30
)

// Farming sub-prefixes
const (
	FARMING_SNAPSHOT    byte = 0x00
	FARMING_CERTIFICATE byte = 0x01
	FARMING_SEQUENCE    byte = 0x02
)
