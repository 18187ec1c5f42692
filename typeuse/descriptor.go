package typeuse

import (
	"fmt"

	"github.com/exoego/inspequte-sub000/ir"
)

// ParseFieldDescriptor builds a TypeUse tree from a raw (non-generic)
// field descriptor such as "Ljava/lang/String;" or "[[I".
func ParseFieldDescriptor(descriptor string) (*ir.TypeUse, error) {
	d := descriptorParser{src: descriptor}
	tu, err := d.parseType()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.src) {
		return nil, fmt.Errorf("%w: trailing data in descriptor %q", ErrMalformed, descriptor)
	}
	return tu, nil
}

// ParseMethodDescriptor builds TypeUse trees for every formal parameter
// and the return type of a raw method descriptor such as
// "(Ljava/lang/String;I)V".
func ParseMethodDescriptor(descriptor string) ([]*ir.TypeUse, *ir.TypeUse, error) {
	d := descriptorParser{src: descriptor}
	if d.pos >= len(d.src) || d.src[d.pos] != '(' {
		return nil, nil, fmt.Errorf("%w: method descriptor %q missing '('", ErrMalformed, descriptor)
	}
	d.pos++

	var params []*ir.TypeUse
	for d.pos < len(d.src) && d.src[d.pos] != ')' {
		p, err := d.parseType()
		if err != nil {
			return nil, nil, err
		}
		params = append(params, p)
	}
	if d.pos >= len(d.src) {
		return nil, nil, fmt.Errorf("%w: method descriptor %q missing ')'", ErrMalformed, descriptor)
	}
	d.pos++ // ')'

	if d.pos < len(d.src) && d.src[d.pos] == 'V' {
		d.pos++
		return params, &ir.TypeUse{Tag: ir.TUVoid}, nil
	}
	ret, err := d.parseType()
	if err != nil {
		return nil, nil, err
	}
	if d.pos != len(d.src) {
		return nil, nil, fmt.Errorf("%w: trailing data in descriptor %q", ErrMalformed, descriptor)
	}
	return params, ret, nil
}

type descriptorParser struct {
	src string
	pos int
}

func (d *descriptorParser) parseType() (*ir.TypeUse, error) {
	if d.pos >= len(d.src) {
		return nil, fmt.Errorf("%w: unexpected end of descriptor %q", ErrTruncated, d.src)
	}
	c := d.src[d.pos]
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		d.pos++
		return &ir.TypeUse{Tag: ir.TUBase, Base: string(c)}, nil
	case '[':
		d.pos++
		component, err := d.parseType()
		if err != nil {
			return nil, err
		}
		return &ir.TypeUse{Tag: ir.TUArray, Array: component}, nil
	case 'L':
		d.pos++
		start := d.pos
		for d.pos < len(d.src) && d.src[d.pos] != ';' {
			d.pos++
		}
		if d.pos >= len(d.src) {
			return nil, fmt.Errorf("%w: unterminated class descriptor in %q", ErrMalformed, d.src)
		}
		name := d.src[start:d.pos]
		d.pos++ // ';'
		return &ir.TypeUse{Tag: ir.TUClass, ClassName: name}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized descriptor byte %q in %q", ErrMalformed, c, d.src)
	}
}
