package blockchain

import (
	"encoding/binary"

	"vasp-link.backend/pkg/addr"
)

// attestSuffix is the domain separator appended to travel rule signature
// messages.
const attestSuffix = "@@$$VASP_ATTEST$$@@"

// TravelRuleMetadata builds the transfer metadata for a payment reference id
// plus the message the receiving VASP's compliance key must sign: metadata,
// sender on-chain address, little-endian amount, attest suffix.
func TravelRuleMetadata(referenceID string, senderAddress addr.AccountAddress, amount uint64) (metadata, sigMsg []byte) {
	metadata = []byte(referenceID)

	sigMsg = append([]byte{}, metadata...)
	sigMsg = append(sigMsg, senderAddress[:]...)
	sigMsg = binary.LittleEndian.AppendUint64(sigMsg, amount)
	sigMsg = append(sigMsg, []byte(attestSuffix)...)
	return metadata, sigMsg
}
