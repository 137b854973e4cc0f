package vector

import "github.com/boswell-ai/boswell/pkg/types"

func claimIDBytes(id types.ClaimID) []byte {
	b := id.Bytes()
	return b[:]
}

func claimIDFromBytes(b []byte) (types.ClaimID, error) {
	return types.ClaimIDFromBytes(b)
}
