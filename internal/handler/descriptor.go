// ABOUTME: Message handler descriptors and their registration options
// ABOUTME: A descriptor matches by keyword set or verify func, never both

package handler

import (
	"context"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/2389/coven-bot/internal/message"
)

// MessageFunc handles a matched message. A nil or empty reply sends nothing.
type MessageFunc func(ctx context.Context, msg *message.Message) (*message.Reply, error)

// VerifyFunc is a custom match predicate.
type VerifyFunc func(ctx context.Context, msg *message.Message) bool

// PrefixMode selects how a descriptor applies the prefix rule.
type PrefixMode int

const (
	// PrefixDefault follows the descriptor's group config, or requires a
	// prefix when the descriptor has no group.
	PrefixDefault PrefixMode = iota
	// PrefixRequired always applies the prefix rule.
	PrefixRequired
	// PrefixIgnored never applies the prefix rule.
	PrefixIgnored
)

// GroupConfig holds behavior shared by every handler in a group.
type GroupConfig struct {
	ID string
	// IgnorePrefix lets the group's default-mode handlers fire without a prefix.
	IgnorePrefix bool
	AllowDirect  bool
	DirectOnly   bool
}

// KeywordSet is the keyword predicate of a descriptor. An empty set
// matches every message.
type KeywordSet struct {
	Contains []string
	Equal    []string
	Regexps  []*regexp.Regexp
}

// Empty reports whether the set has no keywords.
func (k KeywordSet) Empty() bool {
	return len(k.Contains) == 0 && len(k.Equal) == 0 && len(k.Regexps) == 0
}

// Match reports whether text satisfies any keyword.
func (k KeywordSet) Match(text string) bool {
	if k.Empty() {
		return true
	}
	for _, w := range k.Equal {
		if text == w {
			return true
		}
	}
	for _, w := range k.Contains {
		if strings.Contains(text, w) {
			return true
		}
	}
	for _, re := range k.Regexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Descriptor is one registered message handler.
type Descriptor struct {
	name        string
	fn          MessageFunc
	level       int
	group       string
	keywords    KeywordSet
	verify      VerifyFunc
	allowDirect *bool
	directOnly  bool
	prefixMode  PrefixMode
	prefixes    []string
}

// Name identifies the handler in logs and dispatch records.
func (d *Descriptor) Name() string { return d.name }

// Level is the candidate strength; higher wins.
func (d *Descriptor) Level() int { return d.level }

// Group is the group id, empty when ungrouped.
func (d *Descriptor) Group() string { return d.group }

// Keywords returns the keyword predicate. It is empty when Verify is used.
func (d *Descriptor) Keywords() KeywordSet { return d.keywords }

// HasVerify reports whether the descriptor uses a custom predicate.
func (d *Descriptor) HasVerify() bool { return d.verify != nil }

// Option configures a message handler registration.
type Option func(*Descriptor)

// Contains matches messages whose text contains any of words.
func Contains(words ...string) Option {
	return func(d *Descriptor) { d.keywords.Contains = append(d.keywords.Contains, words...) }
}

// Equal matches messages whose text equals any of words.
func Equal(words ...string) Option {
	return func(d *Descriptor) { d.keywords.Equal = append(d.keywords.Equal, words...) }
}

// Regexp matches messages whose text matches any of res.
func Regexp(res ...*regexp.Regexp) Option {
	return func(d *Descriptor) { d.keywords.Regexps = append(d.keywords.Regexps, res...) }
}

// Verify replaces keyword matching with fn.
func Verify(fn VerifyFunc) Option {
	return func(d *Descriptor) { d.verify = fn }
}

// Level sets the candidate level.
func Level(level int) Option {
	return func(d *Descriptor) { d.level = level }
}

// Group assigns the handler to a group.
func Group(id string) Option {
	return func(d *Descriptor) { d.group = id }
}

// AllowDirect sets whether the handler fires for direct messages. When not
// set the group config decides, and ungrouped handlers ignore direct messages.
func AllowDirect(allow bool) Option {
	return func(d *Descriptor) { d.allowDirect = &allow }
}

// DirectOnly restricts the handler to direct messages.
func DirectOnly() Option {
	return func(d *Descriptor) { d.directOnly = true }
}

// CheckPrefix sets the prefix mode.
func CheckPrefix(mode PrefixMode) Option {
	return func(d *Descriptor) { d.prefixMode = mode }
}

// Prefixes overrides the registry's prefix keywords for this handler and
// makes the prefix rule required.
func Prefixes(prefixes ...string) Option {
	return func(d *Descriptor) {
		d.prefixes = append(d.prefixes, prefixes...)
		d.prefixMode = PrefixRequired
	}
}

// Name sets the handler name. It defaults to the function name.
func Name(name string) Option {
	return func(d *Descriptor) { d.name = name }
}

func newDescriptor(fn MessageFunc, opts []Option) *Descriptor {
	d := &Descriptor{fn: fn}
	for _, opt := range opts {
		opt(d)
	}
	if d.verify != nil {
		d.keywords = KeywordSet{}
	}
	if d.name == "" {
		d.name = funcName(fn)
	}
	return d
}

func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "unknown"
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return "unknown"
}

// matchEnv is the registry state a descriptor is matched against.
type matchEnv struct {
	prefixes []string
	groups   map[string]GroupConfig
}

// scopeAllows reports whether the descriptor fires for msg's direct flag.
func (d *Descriptor) scopeAllows(msg *message.Message, env matchEnv) bool {
	group, grouped := env.groups[d.group]

	allowDirect := false
	switch {
	case d.allowDirect != nil:
		allowDirect = *d.allowDirect
	case grouped:
		allowDirect = group.AllowDirect
	}
	directOnly := d.directOnly || (grouped && group.DirectOnly)

	if msg.IsDirect {
		return allowDirect || directOnly
	}
	return !directOnly
}

// prefixText applies the prefix rule. It returns the text to match keywords
// against and false when the rule rejects the message.
func (d *Descriptor) prefixText(msg *message.Message, env matchEnv) (string, bool) {
	prefixes := d.prefixes
	if len(prefixes) == 0 {
		prefixes = env.prefixes
	}
	stripped, hasPrefix := stripPrefix(msg.Text, prefixes)

	required := true
	switch d.prefixMode {
	case PrefixIgnored:
		required = false
	case PrefixDefault:
		if group, ok := env.groups[d.group]; ok {
			required = !group.IgnorePrefix
		}
	}

	switch {
	case hasPrefix:
		return stripped, true
	case !required || len(prefixes) == 0:
		return msg.Text, true
	case msg.IsDirect || msg.IsAt:
		return msg.Text, true
	default:
		return "", false
	}
}

func stripPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return strings.TrimSpace(strings.TrimPrefix(text, p)), true
		}
	}
	return text, false
}
