package qris

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	tagInitiation = "01"
	tagAmount     = "54"
	tagCRC        = "63"

	dynamicInitiation = "12"
	defaultPNGSize    = 512
)

// LocalRenderer turns the merchant's static QRIS payload into a dynamic one
// carrying the amount and encodes it as a PNG without any network call.
type LocalRenderer struct {
	payload string
	size    int
}

func NewLocalRenderer(staticPayload string) *LocalRenderer {
	return &LocalRenderer{payload: strings.TrimSpace(staticPayload), size: defaultPNGSize}
}

func (r *LocalRenderer) Render(ctx context.Context, amount int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	content, err := Dynamic(r.payload, amount)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(content, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return png, nil
}

type field struct {
	tag   string
	value string
}

// Dynamic returns payload with the point of initiation switched to dynamic,
// the transaction amount set and the checksum recomputed.
func Dynamic(payload string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	fields, err := parseTLV(payload)
	if err != nil {
		return "", err
	}

	out := make([]field, 0, len(fields)+1)
	for _, f := range fields {
		switch f.tag {
		case tagAmount, tagCRC:
			continue
		case tagInitiation:
			f.value = dynamicInitiation
		}
		out = append(out, f)
	}
	out = append(out, field{tag: tagAmount, value: strconv.FormatInt(amount, 10)})
	sort.SliceStable(out, func(i, j int) bool { return out[i].tag < out[j].tag })

	var b strings.Builder
	for _, f := range out {
		fmt.Fprintf(&b, "%s%02d%s", f.tag, len(f.value), f.value)
	}
	b.WriteString(tagCRC + "04")
	body := b.String()

	return body + fmt.Sprintf("%04X", CRC16(body)), nil
}

func parseTLV(s string) ([]field, error) {
	var fields []field
	for i := 0; i < len(s); {
		if i+4 > len(s) {
			return nil, fmt.Errorf("%w: truncated tag at %d", ErrRender, i)
		}
		tag := s[i : i+2]
		n, err := strconv.Atoi(s[i+2 : i+4])
		if err != nil {
			return nil, fmt.Errorf("%w: bad length for tag %s", ErrRender, tag)
		}
		if i+4+n > len(s) {
			return nil, fmt.Errorf("%w: tag %s overruns payload", ErrRender, tag)
		}
		fields = append(fields, field{tag: tag, value: s[i+4 : i+4+n]})
		i += 4 + n
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrRender)
	}
	return fields, nil
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
