package envelope

import (
	"regexp"
	"unicode/utf8"
)

// Defaults for Limits.
const (
	DefaultMaxQueryLimit         = 100
	DefaultMaxBatchSize          = 50
	DefaultMaxTopicsPerSubscribe = 1024
	DefaultMaxTopicLength        = 512
	DefaultMaxMessageBytes       = 1 << 20
)

// Limits bounds what requests may ask for.
type Limits struct {
	MaxQueryLimit         uint32
	MaxBatchSize          int
	MaxTopicsPerSubscribe int
	MaxTopicLength        int
	MaxMessageBytes       int
	// TopicPattern, when set, must match every topic.
	TopicPattern *regexp.Regexp
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQueryLimit:         DefaultMaxQueryLimit,
		MaxBatchSize:          DefaultMaxBatchSize,
		MaxTopicsPerSubscribe: DefaultMaxTopicsPerSubscribe,
		MaxTopicLength:        DefaultMaxTopicLength,
		MaxMessageBytes:       DefaultMaxMessageBytes,
	}
}

// withDefaults fills zero fields.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxQueryLimit == 0 {
		l.MaxQueryLimit = d.MaxQueryLimit
	}
	if l.MaxBatchSize <= 0 {
		l.MaxBatchSize = d.MaxBatchSize
	}
	if l.MaxTopicsPerSubscribe <= 0 {
		l.MaxTopicsPerSubscribe = d.MaxTopicsPerSubscribe
	}
	if l.MaxTopicLength <= 0 {
		l.MaxTopicLength = d.MaxTopicLength
	}
	if l.MaxMessageBytes <= 0 {
		l.MaxMessageBytes = d.MaxMessageBytes
	}
	return l
}

// Normalize returns l with zero fields replaced by defaults.
func (l Limits) Normalize() Limits { return l.withDefaults() }

// ClampLimit maps a requested page size into (0, MaxQueryLimit]. Zero and
// oversized requests get the maximum; it never fails.
func (l Limits) ClampLimit(requested uint32) uint32 {
	ceiling := l.withDefaults().MaxQueryLimit
	if requested == 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// ValidateTopic checks a topic name.
func (l Limits) ValidateTopic(topic string) error {
	l = l.withDefaults()
	if topic == "" {
		return invalidf("empty topic")
	}
	if len(topic) > l.MaxTopicLength {
		return invalidf("topic longer than %d bytes", l.MaxTopicLength)
	}
	if !utf8.ValidString(topic) {
		return invalidf("topic is not valid utf-8")
	}
	for _, r := range topic {
		if r < 0x20 || r == 0x7f {
			return invalidf("topic contains control characters")
		}
	}
	if l.TopicPattern != nil && !l.TopicPattern.MatchString(topic) {
		return invalidf("topic %q does not match %s", topic, l.TopicPattern.String())
	}
	return nil
}

// ValidateEnvelope checks one envelope for Publish.
func (l Limits) ValidateEnvelope(e Envelope) error {
	l = l.withDefaults()
	if err := l.ValidateTopic(e.Topic); err != nil {
		return err
	}
	if len(e.Message) > l.MaxMessageBytes {
		return invalidf("message of %d bytes exceeds %d", len(e.Message), l.MaxMessageBytes)
	}
	return nil
}

// ValidateEnvelopes checks a Publish batch. An empty batch is invalid.
func (l Limits) ValidateEnvelopes(envs []Envelope) error {
	if len(envs) == 0 {
		return invalidf("no envelopes")
	}
	for i := range envs {
		if err := l.ValidateEnvelope(envs[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTopics checks a Subscribe topic set.
func (l Limits) ValidateTopics(topics []string) error {
	l = l.withDefaults()
	if len(topics) == 0 {
		return invalidf("no topics")
	}
	if len(topics) > l.MaxTopicsPerSubscribe {
		return invalidf("%d topics exceeds %d", len(topics), l.MaxTopicsPerSubscribe)
	}
	for _, t := range topics {
		if err := l.ValidateTopic(t); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBatchSize rejects an empty or oversized BatchQuery.
func (l Limits) ValidateBatchSize(n int) error {
	l = l.withDefaults()
	if n == 0 {
		return invalidf("empty batch")
	}
	if n > l.MaxBatchSize {
		return invalidf("batch of %d exceeds %d", n, l.MaxBatchSize)
	}
	return nil
}

// ValidateSpec checks the parts of a QuerySpec that do not need storage.
// A merged spec reads at most MaxBatchSize distinct topics and takes no
// EndCursor.
func (l Limits) ValidateSpec(s QuerySpec) error {
	l = l.withDefaults()
	if len(s.Topics) > 0 && s.Topic != "" {
		return invalidf("set topic or topics, not both")
	}
	topics := s.TopicList()
	if len(topics) > l.MaxBatchSize {
		return invalidf("query of %d topics exceeds %d", len(topics), l.MaxBatchSize)
	}
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if err := l.ValidateTopic(t); err != nil {
			return err
		}
		if _, dup := seen[t]; dup {
			return invalidf("duplicate topic %q", t)
		}
		seen[t] = struct{}{}
	}
	if s.Merged() && len(s.EndCursor) > 0 {
		return invalidf("end cursor needs a single topic")
	}
	if s.Direction < DirectionUnspecified || s.Direction > DirectionDescending {
		return invalidf("unknown direction %d", s.Direction)
	}
	if s.EndTimeNs != 0 && s.StartTimeNs > s.EndTimeNs {
		return invalidf("start time after end time")
	}
	return nil
}
