package messaging

// CorrelationDataProvider derives metadata from a message being processed.
// The derived entries are copied onto messages created during that
// processing.
type CorrelationDataProvider interface {
	CorrelationDataFor(msg Message) MetaData
}

// CorrelationDataProviderFunc adapts a plain function to CorrelationDataProvider.
type CorrelationDataProviderFunc func(msg Message) MetaData

// CorrelationDataFor implements CorrelationDataProvider.
func (f CorrelationDataProviderFunc) CorrelationDataFor(msg Message) MetaData {
	return f(msg)
}

// MessageOriginProvider records where a message came from: the correlation
// id is the id of the message being processed, and the trace id is inherited
// from it, falling back to its id when the chain starts here.
type MessageOriginProvider struct {
	CorrelationKey string
	TraceKey       string
}

// NewMessageOriginProvider returns a provider using KeyCorrelationID and KeyTraceID.
func NewMessageOriginProvider() *MessageOriginProvider {
	return &MessageOriginProvider{
		CorrelationKey: KeyCorrelationID,
		TraceKey:       KeyTraceID,
	}
}

// CorrelationDataFor implements CorrelationDataProvider.
func (p *MessageOriginProvider) CorrelationDataFor(msg Message) MetaData {
	traceID := msg.ID
	if v, ok := msg.MetaData[p.TraceKey]; ok {
		if s, ok := v.(string); ok && s != "" {
			traceID = s
		}
	}

	return MetaData{
		p.CorrelationKey: msg.ID,
		p.TraceKey:       traceID,
	}
}

// SimpleCorrelationDataProvider copies the named metadata entries, when
// present, from the processed message.
type SimpleCorrelationDataProvider struct {
	keys []string
}

// NewSimpleCorrelationDataProvider returns a provider copying the given keys.
func NewSimpleCorrelationDataProvider(keys ...string) *SimpleCorrelationDataProvider {
	return &SimpleCorrelationDataProvider{keys: keys}
}

// CorrelationDataFor implements CorrelationDataProvider.
func (p *SimpleCorrelationDataProvider) CorrelationDataFor(msg Message) MetaData {
	out := make(MetaData, len(p.keys))
	for _, k := range p.keys {
		if v, ok := msg.MetaData[k]; ok {
			out[k] = v
		}
	}
	return out
}

// MultiCorrelationDataProvider merges several providers. On key collision the
// provider listed last wins.
type MultiCorrelationDataProvider struct {
	providers []CorrelationDataProvider
}

// NewMultiCorrelationDataProvider combines providers in order.
func NewMultiCorrelationDataProvider(providers ...CorrelationDataProvider) *MultiCorrelationDataProvider {
	return &MultiCorrelationDataProvider{providers: providers}
}

// CorrelationDataFor implements CorrelationDataProvider.
func (p *MultiCorrelationDataProvider) CorrelationDataFor(msg Message) MetaData {
	out := MetaData{}
	for _, provider := range p.providers {
		out = out.Merge(provider.CorrelationDataFor(msg))
	}
	return out
}
