package cos

import (
	"strconv"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generated short IDs, lifted verbatim from the teacher's
// cmn/cos/uuid.go (shortid requires len(abc) > 0x3f for its tie-breaker).
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenShortID = 9 // per https://github.com/teris-io/shortid#id-length

var (
	sid *shortid.Shortid
	tie atomic.Uint32
)

func InitIDGen(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, idABC, seed)
}

// GenConnID produces a short, sortable-enough ID for a newly accepted
// connection (spec.md §3 "Connection state: id, ...").
func GenConnID() string {
	if sid == nil {
		InitIDGen(uint64(tie.Add(1)))
	}
	return sid.MustGenerate()
}

// HashOutgoingCallID derives the binlog outgoing-call correlation ID from
// the caller's correlation ID, the method's full name, the channel URL and
// a per-call nonce, per spec.md §4.7: "correlation ID (derived from the
// caller's correlation ID, method full name, channel URL, per-call nonce —
// hashed)".
func HashOutgoingCallID(callerCorrID uint64, methodFullName, channelURL string, nonce uint64) uint64 {
	h := xxhash.New64()
	_, _ = h.Write([]byte(strconv.FormatUint(callerCorrID, 10)))
	_, _ = h.Write([]byte(methodFullName))
	_, _ = h.Write([]byte(channelURL))
	_, _ = h.Write([]byte(strconv.FormatUint(nonce, 10)))
	return h.Sum64()
}

// NextNonce is a process-wide monotonically increasing per-call nonce
// source for HashOutgoingCallID.
func NextNonce() uint64 { return uint64(tie.Add(1)) }
