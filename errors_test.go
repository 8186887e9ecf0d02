package lfconcurrent_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/danwails/lfconcurrent"
	"github.com/danwails/lfconcurrent/pkg/arena"
)

func TestErrorFormatsOpKindAndWrapped(t *testing.T) {
	wrapped := errors.New("declined")
	err := &lfconcurrent.Error{Kind: lfconcurrent.KindOutOfAddressSpace, Op: "arena.Allocate", Err: wrapped}

	assert.Equal(t, "lfconcurrent: arena.Allocate: OUT_OF_ADDRESS_SPACE: declined", err.Error())
	assert.ErrorIs(t, err, wrapped)
}

func TestErrorWithoutWrappedCause(t *testing.T) {
	err := &lfconcurrent.Error{Kind: lfconcurrent.KindTLSExhausted, Op: "tls.KeyCreate"}
	assert.Equal(t, "lfconcurrent: tls.KeyCreate: TLS_EXHAUSTED", err.Error())
}

func TestKindStringMirrorsTaxonomyNames(t *testing.T) {
	cases := map[lfconcurrent.Kind]string{
		lfconcurrent.KindOutOfAddressSpace:    "OUT_OF_ADDRESS_SPACE",
		lfconcurrent.KindProtocolViolation:    "PROTOCOL_VIOLATION",
		lfconcurrent.KindTLSExhausted:         "TLS_EXHAUSTED",
		lfconcurrent.KindUnexpectedDeallocate: "UNEXPECTED_DEALLOCATE",
		lfconcurrent.Kind(99):                 "UNKNOWN",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestIsMatchesWrappedErrorKind(t *testing.T) {
	inner := &lfconcurrent.Error{Kind: lfconcurrent.KindUnexpectedDeallocate, Op: "arena.Free"}
	wrapped := errors.Join(errors.New("context"), inner)

	assert.True(t, lfconcurrent.Is(wrapped, lfconcurrent.KindUnexpectedDeallocate))
	assert.False(t, lfconcurrent.Is(wrapped, lfconcurrent.KindOutOfAddressSpace))
	assert.False(t, lfconcurrent.Is(errors.New("unrelated"), lfconcurrent.KindOutOfAddressSpace))
}

// TestArenaOversizedRequestSurfacesOutOfAddressSpace exercises the taxonomy
// against a real failure path rather than a hand-built *Error: pkg/arena is
// the one component spec.md §7 names explicitly ("allocate fails with
// OUT_OF_ADDRESS_SPACE when the page allocator declines").
func TestArenaOversizedRequestSurfacesOutOfAddressSpace(t *testing.T) {
	a := arena.New(arena.NewHeapPageAllocator(256), arena.WithMaxRequest(64))

	_, err := a.Allocate(128, 8)
	assert.True(t, lfconcurrent.Is(err, lfconcurrent.KindOutOfAddressSpace))

	var reqErr *arena.RequestError
	assert.ErrorAs(t, err, &reqErr)
}

// TestArenaFreeSurfacesUnexpectedDeallocate exercises the
// detect_unexpected_deallocate-equivalent guard against a real arena.
func TestArenaFreeSurfacesUnexpectedDeallocate(t *testing.T) {
	a := arena.New(arena.NewHeapPageAllocator(256))
	p, err := a.Allocate(8, 8)
	assert.NoError(t, err)
	assert.NoError(t, a.Free(p))

	var foreign int
	assert.True(t, lfconcurrent.Is(a.Free(unsafe.Pointer(&foreign)), lfconcurrent.KindUnexpectedDeallocate))
}
