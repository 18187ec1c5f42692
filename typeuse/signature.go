package typeuse

import (
	"fmt"

	"github.com/exoego/inspequte-sub000/ir"
)

// ParseFieldSignature builds a TypeUse tree from a field's generic
// signature, e.g. "Ljava/util/List<Ljava/lang/String;>;".
func ParseFieldSignature(signature string) (*ir.TypeUse, error) {
	p := &signatureParser{src: signature}
	tu, err := p.parseReferenceTypeSignature()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: trailing data in signature %q", ErrMalformed, signature)
	}
	return tu, nil
}

// ParseMethodSignature builds TypeUse trees for a method's generic
// signature: its own type parameter names, each formal parameter, and the
// return type. Throws clauses are walked (for correct cursor advancement)
// but discarded; checked-exception types play no part in nullness.
func ParseMethodSignature(signature string) ([]string, []*ir.TypeUse, *ir.TypeUse, error) {
	p := &signatureParser{src: signature}

	typeParams, err := p.parseOptionalTypeParameters()
	if err != nil {
		return nil, nil, nil, err
	}

	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, nil, nil, fmt.Errorf("%w: method signature %q missing '('", ErrMalformed, signature)
	}
	p.pos++

	var params []*ir.TypeUse
	for p.pos < len(p.src) && p.src[p.pos] != ')' {
		t, err := p.parseJavaTypeSignature()
		if err != nil {
			return nil, nil, nil, err
		}
		params = append(params, t)
	}
	if p.pos >= len(p.src) {
		return nil, nil, nil, fmt.Errorf("%w: method signature %q missing ')'", ErrMalformed, signature)
	}
	p.pos++ // ')'

	var ret *ir.TypeUse
	if p.pos < len(p.src) && p.src[p.pos] == 'V' {
		p.pos++
		ret = &ir.TypeUse{Tag: ir.TUVoid}
	} else {
		r, err := p.parseJavaTypeSignature()
		if err != nil {
			return nil, nil, nil, err
		}
		ret = r
	}

	for p.pos < len(p.src) && p.src[p.pos] == '^' {
		p.pos++
		if p.pos < len(p.src) && p.src[p.pos] == 'T' {
			if _, err := p.parseTypeVariableSignature(); err != nil {
				return nil, nil, nil, err
			}
		} else if _, err := p.parseClassTypeSignature(); err != nil {
			return nil, nil, nil, err
		}
	}

	return typeParams, params, ret, nil
}

type signatureParser struct {
	src string
	pos int
}

func (p *signatureParser) parseOptionalTypeParameters() ([]string, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		return nil, nil
	}
	p.pos++
	var names []string
	for p.pos < len(p.src) && p.src[p.pos] != '>' {
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ':' {
			p.pos++
		}
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("%w: unterminated type parameter in %q", ErrMalformed, p.src)
		}
		names = append(names, p.src[start:p.pos])
		p.pos++ // ':' of ClassBound
		if p.pos < len(p.src) && p.src[p.pos] != ':' && p.src[p.pos] != '>' {
			if _, err := p.parseReferenceTypeSignature(); err != nil {
				return nil, err
			}
		}
		for p.pos < len(p.src) && p.src[p.pos] == ':' {
			p.pos++
			if _, err := p.parseReferenceTypeSignature(); err != nil {
				return nil, err
			}
		}
	}
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unterminated type parameters in %q", ErrMalformed, p.src)
	}
	p.pos++ // '>'
	return names, nil
}

func (p *signatureParser) parseJavaTypeSignature() (*ir.TypeUse, error) {
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unexpected end of signature %q", ErrTruncated, p.src)
	}
	switch p.src[p.pos] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		c := p.src[p.pos]
		p.pos++
		return &ir.TypeUse{Tag: ir.TUBase, Base: string(c)}, nil
	default:
		return p.parseReferenceTypeSignature()
	}
}

func (p *signatureParser) parseReferenceTypeSignature() (*ir.TypeUse, error) {
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unexpected end of signature %q", ErrTruncated, p.src)
	}
	switch p.src[p.pos] {
	case 'L':
		return p.parseClassTypeSignature()
	case 'T':
		return p.parseTypeVariableSignature()
	case '[':
		p.pos++
		component, err := p.parseJavaTypeSignature()
		if err != nil {
			return nil, err
		}
		return &ir.TypeUse{Tag: ir.TUArray, Array: component}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized signature byte %q in %q", ErrMalformed, p.src[p.pos], p.src)
	}
}

func (p *signatureParser) parseTypeVariableSignature() (*ir.TypeUse, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != 'T' {
		return nil, fmt.Errorf("%w: expected type variable in %q", ErrMalformed, p.src)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ';' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unterminated type variable in %q", ErrMalformed, p.src)
	}
	name := p.src[start:p.pos]
	p.pos++ // ';'
	return &ir.TypeUse{Tag: ir.TUTypeVar, Base: name}, nil
}

func (p *signatureParser) parseClassTypeSignature() (*ir.TypeUse, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != 'L' {
		return nil, fmt.Errorf("%w: expected class type in %q", ErrMalformed, p.src)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '<' && p.src[p.pos] != ';' && p.src[p.pos] != '.' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unterminated class type in %q", ErrMalformed, p.src)
	}
	name := p.src[start:p.pos]
	root := &ir.TypeUse{Tag: ir.TUClass, ClassName: name}

	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		args, err := p.parseTypeArguments()
		if err != nil {
			return nil, err
		}
		root.TypeArguments = args
	}

	current := root
	for p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		innerStart := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != '<' && p.src[p.pos] != ';' && p.src[p.pos] != '.' {
			p.pos++
		}
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("%w: unterminated inner class type in %q", ErrMalformed, p.src)
		}
		inner := &ir.TypeUse{Tag: ir.TUClass, ClassName: p.src[innerStart:p.pos]}
		if p.pos < len(p.src) && p.src[p.pos] == '<' {
			args, err := p.parseTypeArguments()
			if err != nil {
				return nil, err
			}
			inner.TypeArguments = args
		}
		current.Inner = inner
		current = inner
	}

	if p.pos >= len(p.src) || p.src[p.pos] != ';' {
		return nil, fmt.Errorf("%w: class type in %q missing terminating ';'", ErrMalformed, p.src)
	}
	p.pos++
	return root, nil
}

func (p *signatureParser) parseTypeArguments() ([]*ir.TypeUse, error) {
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		return nil, fmt.Errorf("%w: expected '<' in %q", ErrMalformed, p.src)
	}
	p.pos++
	var args []*ir.TypeUse
	for p.pos < len(p.src) && p.src[p.pos] != '>' {
		arg, err := p.parseTypeArgument()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unterminated type arguments in %q", ErrMalformed, p.src)
	}
	p.pos++ // '>'
	return args, nil
}

func (p *signatureParser) parseTypeArgument() (*ir.TypeUse, error) {
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("%w: unexpected end of signature %q", ErrTruncated, p.src)
	}
	switch p.src[p.pos] {
	case '*':
		p.pos++
		return &ir.TypeUse{Tag: ir.TUWildcard}, nil
	case '+', '-':
		p.pos++
		bound, err := p.parseReferenceTypeSignature()
		if err != nil {
			return nil, err
		}
		return &ir.TypeUse{Tag: ir.TUWildcard, WildcardBound: bound}, nil
	default:
		return p.parseReferenceTypeSignature()
	}
}
