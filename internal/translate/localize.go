// Package translate implements the translation phase: it sends the text
// fields of a cloned product to translation providers, post-processes the
// results and commits them to the target store.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
	"github.com/roach88/storeclone/internal/retry"
	"github.com/roach88/storeclone/internal/status"
)

// Methods selects a provider per field group.
type Methods struct {
	Title       commerce.Method
	Description commerce.Method
	Variants    commerce.Method
}

// DefaultMethods is the provider mix of the automated weekly run.
var DefaultMethods = Methods{
	Title:       commerce.MethodDeepSeek,
	Description: commerce.MethodDeepSeek,
	Variants:    commerce.MethodGoogle,
}

// List returns the methods in field order.
func (m Methods) List() []commerce.Method {
	return []commerce.Method{m.Title, m.Description, m.Variants}
}

// Request describes one translation job.
type Request struct {
	// GID is the clone in the target store.
	GID string
	// SourceProductID is used for the handle suffix.
	SourceProductID string
	SourceLang      string
	TargetLang      string
	Instruction     string
}

// FieldFailure records one field that could not be translated.
type FieldFailure struct {
	Field    string
	Required bool
	Err      error
}

// Outcome is the result of one translation job.
type Outcome struct {
	Phase  status.Phase
	Title  string
	Handle string
	Failed []FieldFailure
	Err    error
}

// Localizer runs the translation phase.
type Localizer struct {
	translator commerce.Translator
	methods    Methods
	retry      *retry.Policy
	logger     *zap.Logger
}

// Option configures a Localizer.
type Option func(*Localizer)

// WithMethods sets the provider per field group.
func WithMethods(m Methods) Option {
	return func(l *Localizer) { l.methods = m }
}

// WithRetry sets the retry policy for platform calls.
func WithRetry(p *retry.Policy) Option {
	return func(l *Localizer) { l.retry = p }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Localizer) { l.logger = logger }
}

// NewLocalizer creates a Localizer using translator for every provider call.
func NewLocalizer(translator commerce.Translator, opts ...Option) *Localizer {
	l := &Localizer{
		translator: translator,
		methods:    DefaultMethods,
		retry:      retry.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Methods returns the configured provider mix.
func (l *Localizer) Methods() Methods {
	return l.methods
}

// job carries per-call state so the Localizer itself stays stateless.
type job struct {
	*Localizer
	req    Request
	log    *zap.Logger
	failed []FieldFailure
}

func (j *job) translate(ctx context.Context, text string, field commerce.FieldType, method commerce.Method) (string, error) {
	out, err := j.translator.TranslateText(ctx, commerce.TranslateRequest{
		Text:        text,
		Method:      method,
		SourceLang:  j.req.SourceLang,
		TargetLang:  j.req.TargetLang,
		Field:       field,
		Instruction: j.req.Instruction,
	})
	if err != nil {
		return "", err
	}
	out = CleanText(out)
	if out == "" && strings.TrimSpace(text) != "" {
		return "", errors.New("provider returned empty text")
	}
	return out, nil
}

func (j *job) fail(field string, required bool, err error) {
	j.failed = append(j.failed, FieldFailure{Field: field, Required: required, Err: err})
	j.log.Warn("field translation failed", zap.String("field", field), zap.Bool("required", required), zap.Error(err))
}

// Localize translates the clone identified by req.GID on platform and
// commits the result. A failing field does not stop the others; the outcome
// is ERROR_TRANSLATING when a required field (title, description) or the
// final commit failed.
func (l *Localizer) Localize(ctx context.Context, platform commerce.Platform, req Request) Outcome {
	j := &job{
		Localizer: l,
		req:       req,
		log:       l.logger.With(zap.String("gid", req.GID), zap.String("lang", req.TargetLang)),
	}

	p, err := retry.Value(ctx, l.retry, "translate.fetch_clone", func(ctx context.Context) (*commerce.Product, error) {
		return platform.FetchProduct(ctx, req.GID)
	})
	switch {
	case errors.Is(err, commerce.ErrNotFound):
		return Outcome{Phase: status.PhaseErrorCloneMissing, Err: fmt.Errorf("fetch clone %s: %w", req.GID, err)}
	case err != nil:
		return Outcome{Phase: status.PhaseErrorTranslating, Err: fmt.Errorf("fetch clone %s: %w", req.GID, err)}
	}
	if strings.TrimSpace(p.Title) == "" {
		return Outcome{Phase: status.PhaseErrorMissingData, Err: fmt.Errorf("clone %s has no title", req.GID)}
	}

	var update commerce.ProductUpdate

	title, err := j.translate(ctx, p.Title, commerce.FieldTitle, l.methods.Title)
	if err != nil {
		j.fail("title", true, err)
	} else {
		update.Title = ApplyTitleConstraints(title)
		update.Handle = Handle(update.Title, req.SourceProductID)
	}

	if strings.TrimSpace(p.BodyHTML) != "" {
		body, err := l.translator.TranslateText(ctx, commerce.TranslateRequest{
			Text:        p.BodyHTML,
			Method:      l.methods.Description,
			SourceLang:  req.SourceLang,
			TargetLang:  req.TargetLang,
			Field:       commerce.FieldDescription,
			Instruction: req.Instruction,
		})
		switch {
		case err != nil:
			j.fail("description", true, err)
		case strings.TrimSpace(body) == "":
			j.fail("description", true, errors.New("provider returned empty text"))
		default:
			update.BodyHTML = strings.TrimSpace(body)
		}
	}

	requiredOK := true
	for _, f := range j.failed {
		if f.Required {
			requiredOK = false
		}
	}

	update.Tags = j.translateTags(ctx, p.Tags, requiredOK)
	update.Options, update.Variants = j.translateOptions(ctx, p.Options, p.Variants)

	err = l.retry.Do(ctx, "translate.update_product", func(ctx context.Context) error {
		return platform.UpdateProduct(ctx, req.GID, update)
	})
	if err != nil {
		return Outcome{Phase: status.PhaseErrorTranslating, Failed: j.failed, Err: fmt.Errorf("commit translation %s: %w", req.GID, err)}
	}

	out := Outcome{Phase: status.PhaseDone, Title: update.Title, Handle: update.Handle, Failed: j.failed}
	if !requiredOK {
		out.Phase = status.PhaseErrorTranslating
		out.Err = requiredFailure(j.failed)
	}
	j.log.Info("translation committed", zap.String("phase", out.Phase.String()), zap.Int("failed_fields", len(j.failed)))
	return out
}

// translateTags translates every tag except the clone marker. The marker is
// dropped only when the required fields succeeded. Failed tags keep their
// original text.
func (j *job) translateTags(ctx context.Context, tags []string, dropMarker bool) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.EqualFold(strings.TrimSpace(tag), commerce.CloneMarkerTag) {
			if !dropMarker {
				out = append(out, tag)
			}
			continue
		}
		translated, err := j.translate(ctx, tag, commerce.FieldTag, j.methods.Variants)
		if err != nil {
			j.fail("tag:"+tag, false, err)
			out = append(out, tag)
			continue
		}
		out = append(out, translated)
	}
	return out
}

// translateOptions translates option names and values. Known sizes are
// passed through, each distinct value is translated once, and variant
// option1..3 are rewritten through the same mapping.
func (j *job) translateOptions(ctx context.Context, options []commerce.Option, variants []commerce.Variant) ([]commerce.Option, []commerce.VariantOptions) {
	if len(options) == 0 {
		return nil, nil
	}

	mappings := make([]map[string]string, len(options))
	outOptions := make([]commerce.Option, len(options))
	for i, opt := range options {
		name, err := j.translate(ctx, opt.Name, commerce.FieldOptionName, j.methods.Variants)
		if err != nil {
			j.fail("option:"+opt.Name, false, err)
			name = opt.Name
		}

		mapping := make(map[string]string, len(opt.Values))
		values := make([]string, len(opt.Values))
		for k, v := range opt.Values {
			if done, ok := mapping[v]; ok {
				values[k] = done
				continue
			}
			translated := v
			if IsKnownSize(v) {
				j.log.Debug("keeping known size", zap.String("value", v))
			} else if t, err := j.translate(ctx, v, commerce.FieldOptionValue, j.methods.Variants); err != nil {
				j.fail("option:"+opt.Name+"="+v, false, err)
			} else {
				translated = t
			}
			mapping[v] = translated
			values[k] = translated
		}
		mappings[i] = mapping
		outOptions[i] = commerce.Option{Name: name, Values: values}
	}

	outVariants := make([]commerce.VariantOptions, 0, len(variants))
	for _, v := range variants {
		vo := commerce.VariantOptions{ID: v.ID}
		for i := 0; i < 3 && i < len(mappings); i++ {
			orig := v.OptionValue(i)
			mapped, ok := mappings[i][orig]
			if !ok {
				mapped = orig
			}
			switch i {
			case 0:
				vo.Option1 = mapped
			case 1:
				vo.Option2 = mapped
			case 2:
				vo.Option3 = mapped
			}
		}
		outVariants = append(outVariants, vo)
	}
	return outOptions, outVariants
}

func requiredFailure(failed []FieldFailure) error {
	var errs []error
	for _, f := range failed {
		if f.Required {
			errs = append(errs, fmt.Errorf("%s: %w", f.Field, f.Err))
		}
	}
	return errors.Join(errs...)
}
