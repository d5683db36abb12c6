package command

import (
	"strings"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// payloadBuffer is a request payload that grows, zero-filled, to fit
// segments written past its end
type payloadBuffer struct {
	data []byte
}

func newPayloadBuffer(data []byte) *payloadBuffer {
	return &payloadBuffer{data: append([]byte(nil), data...)}
}

// writeAt copies segment at offset, growing the buffer when needed
func (b *payloadBuffer) writeAt(offset int, segment []byte) bool {
	if offset < 0 {
		return false
	}
	end := offset + len(segment)
	if end < offset {
		return false
	}
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:end], segment)
	return true
}

func (b *payloadBuffer) Bytes() []byte { return b.data }

// mergeAdditionalData validates each non-empty segment and overlays it onto
// the request payload in order, so later segments win where they overlap.
// The request is only updated when every segment was applied.
func mergeAdditionalData(request channel.Request) error {
	withExtra, ok := request.(channel.RequestWithAdditionalData)
	if !ok {
		return nil
	}
	segments := withExtra.AdditionalData()
	if len(segments) == 0 {
		return nil
	}

	buf := newPayloadBuffer(request.Data())
	applied := 0
	for i, segment := range segments {
		if len(segment.Data) == 0 {
			continue
		}

		if v := segment.Validator; v != nil && !v.Validate(segment.Data) {
			msg := v.ErrorDescription()
			if strings.TrimSpace(msg) == "" {
				msg = MsgInvalidRequestAdditionalData
			}
			return commerrors.AdditionalDataInvalid(msg, i)
		}

		if !buf.writeAt(segment.StartIndex, segment.Data) {
			return commerrors.AdditionalDataOutOfRange(i, segment.StartIndex)
		}
		applied++
	}

	if applied > 0 {
		request.SetData(buf.Bytes())
	}
	return nil
}
