package types

import "fmt"

// RequestSpec is the payload of an oracle request. Type selects the layout of
// every entry in SourceSpecs; variants are never mixed within one request.
type RequestSpec struct {
	Type        RequestType
	SourceSpecs []Source
	Aggregation uint32
	UserData    []byte
}

// NewRequestSpec infers the request type from the first source.
func NewRequestSpec(sources []Source, aggregation uint32, userData []byte) (RequestSpec, error) {
	if len(sources) == 0 {
		return RequestSpec{}, ErrMissingField.Wrap("source_specs")
	}

	spec := RequestSpec{
		Type:        sources[0].RequestType(),
		SourceSpecs: sources,
		Aggregation: aggregation,
		UserData:    userData,
	}
	if err := spec.ValidateBasic(); err != nil {
		return RequestSpec{}, err
	}

	return spec, nil
}

// ValidateBasic checks the tag, the source list shape and every source.
func (r RequestSpec) ValidateBasic() error {
	if err := r.Type.Validate(); err != nil {
		return err
	}

	switch {
	case len(r.SourceSpecs) == 0 && r.Type != RequestTypeOffChain:
		return ErrMissingField.Wrapf("source_specs: %s requests need at least one source", r.Type)
	case len(r.SourceSpecs) > 1 && r.Type == RequestTypeOffChain:
		return ErrInvalidField.Wrapf("source_specs: off-chain requests carry a single source, got %d", len(r.SourceSpecs))
	}

	for i, src := range r.SourceSpecs {
		if src == nil {
			return ErrMissingField.Wrapf("source_specs[%d]", i)
		}
		if src.RequestType() != r.Type {
			return ErrMixedSources.Wrapf("source %d is %s in a %s request", i, src.RequestType(), r.Type)
		}
		if err := src.ValidateBasic(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}

	return nil
}

// Marshal encodes the spec. Only the matching UnmarshalRequestSpec call can read it back.
func (r RequestSpec) Marshal() ([]byte, error) {
	if err := r.ValidateBasic(); err != nil {
		return nil, err
	}

	e := new(encoder)
	e.length(len(r.SourceSpecs), "source_specs")
	for _, src := range r.SourceSpecs {
		src.marshalTo(e)
	}
	e.uint32(r.Aggregation)
	e.bytes(r.UserData, "user_data")

	return e.result()
}

// UnmarshalRequestSpec decodes bz with the layout selected by t. Decoding with
// the wrong layout fails with ErrMalformedEnvelope.
func UnmarshalRequestSpec(t RequestType, bz []byte) (RequestSpec, error) {
	if err := t.Validate(); err != nil {
		return RequestSpec{}, err
	}

	d := newDecoder(bz)
	var sources []Source

	switch t {
	case RequestTypeClassic:
		n := d.count("source_specs", minSourceSpecSize)
		for i := 0; i < n && d.err == nil; i++ {
			var s SourceSpec
			s.unmarshalFrom(d)
			sources = append(sources, s)
		}
	case RequestTypeURL:
		n := d.count("source_specs", minSourceSpecURLSize)
		for i := 0; i < n && d.err == nil; i++ {
			var s SourceSpecURL
			s.unmarshalFrom(d)
			sources = append(sources, s)
		}
	case RequestTypeOffChain:
		n := d.count("source_specs", minSourceSpecOffChain)
		for i := 0; i < n && d.err == nil; i++ {
			var s SourceSpecOffChain
			s.unmarshalFrom(d)
			sources = append(sources, s)
		}
	}

	spec := RequestSpec{
		Type:        t,
		SourceSpecs: sources,
		Aggregation: d.uint32("aggregation"),
		UserData:    d.bytes("user_data"),
	}
	if err := d.finish(t.String() + " request spec"); err != nil {
		return RequestSpec{}, err
	}

	// a layout that happens to fit must still describe a well-formed request
	if err := spec.ValidateBasic(); err != nil {
		return RequestSpec{}, ErrMalformedEnvelope.Wrap(err.Error())
	}

	return spec, nil
}

// ClassicSources returns the sources of a classic request.
func (r RequestSpec) ClassicSources() []SourceSpec {
	out := make([]SourceSpec, 0, len(r.SourceSpecs))
	for _, src := range r.SourceSpecs {
		if s, ok := src.(SourceSpec); ok {
			out = append(out, s)
		}
	}
	return out
}

// URLSources returns the sources of a URL request.
func (r RequestSpec) URLSources() []SourceSpecURL {
	out := make([]SourceSpecURL, 0, len(r.SourceSpecs))
	for _, src := range r.SourceSpecs {
		if s, ok := src.(SourceSpecURL); ok {
			out = append(out, s)
		}
	}
	return out
}

// OffChainSource returns the single source of an off-chain request.
func (r RequestSpec) OffChainSource() (SourceSpecOffChain, bool) {
	for _, src := range r.SourceSpecs {
		if s, ok := src.(SourceSpecOffChain); ok {
			return s, true
		}
	}
	return SourceSpecOffChain{}, false
}
