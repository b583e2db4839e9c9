package generation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
	"github.com/yungbote/docforge-backend/internal/modules/datacontract"
	"github.com/yungbote/docforge-backend/internal/modules/pdf"
	"github.com/yungbote/docforge-backend/internal/modules/render"
	"github.com/yungbote/docforge-backend/internal/modules/render/docmodel"
	"github.com/yungbote/docforge-backend/internal/modules/styles"
	"github.com/yungbote/docforge-backend/internal/modules/variants"
	"github.com/yungbote/docforge-backend/internal/observability"
	"github.com/yungbote/docforge-backend/internal/platform/logger"
)

// Catalog is the read contract for templates, variants and versions. Every
// lookup is tenant scoped; a missing row is (nil, nil).
type Catalog interface {
	GetTenant(ctx context.Context, tenantID string) (*templates.Tenant, error)
	GetTemplate(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Template, error)
	GetVariant(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Variant, error)
	ListVariants(ctx context.Context, tenantID string, templateID uuid.UUID) ([]*templates.Variant, error)
	GetVersion(ctx context.Context, tenantID string, id uuid.UUID) (*templates.Version, error)
	GetActiveVersion(ctx context.Context, tenantID string, environmentID, variantID uuid.UUID) (*templates.Version, error)
}

// RenderError is a per-item failure. The executor records it on the item and
// moves on to the next one.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func failed(stage string, err error) error {
	return &RenderError{Stage: stage, Err: err}
}

func failedf(stage, format string, args ...any) error {
	return &RenderError{Stage: stage, Err: fmt.Errorf(format, args...)}
}

var ErrDocumentTooLarge = errors.New("document exceeds the maximum size")

type Config struct {
	MaxDocumentSizeBytes int64
	OptimizePDF          bool
}

// Artifact is a rendered, not yet persisted document.
type Artifact struct {
	Document *gen.Document
	Warnings []render.Warning
}

type Generator struct {
	log     *logger.Logger
	catalog Catalog
	styles  *styles.Resolver
	engine  *render.Engine
	writer  *pdf.Writer
	cfg     Config
	now     func() time.Time
}

func NewGenerator(log *logger.Logger, catalog Catalog, themes styles.ThemeSource, engine *render.Engine, writer *pdf.Writer, cfg Config) *Generator {
	if engine == nil {
		engine = render.NewEngine(nil)
	}
	if writer == nil {
		writer = pdf.NewWriter(nil)
	}
	return &Generator{
		log:     log.With("component", "Generator"),
		catalog: catalog,
		styles:  styles.NewResolver(themes),
		engine:  engine,
		writer:  writer,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate renders one item. Everything wrong with the item itself comes
// back as *RenderError; other errors are infrastructure failures.
func (g *Generator) Generate(ctx context.Context, req *gen.Request, item *gen.Item) (art *Artifact, err error) {
	ctx, span := observability.StartSpan(ctx, "generation.item",
		attribute.String("request.id", req.ID.String()),
		attribute.String("item.id", item.ID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	tenantID := req.TenantID
	tmpl, err := g.catalog.GetTemplate(ctx, tenantID, item.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, failedf("template", "template %s not found", item.TemplateID)
	}

	variant, version, err := g.resolveVersion(ctx, tenantID, tmpl, item)
	if err != nil {
		return nil, err
	}

	data, err := item.DataMap()
	if err != nil {
		return nil, failedf("data", "decode item data: %v", err)
	}
	if err := datacontract.Validate(tmpl.DataSchema, data); err != nil {
		return nil, failed("data", err)
	}

	doc, err := docmodel.Parse(version.Content)
	if err != nil {
		return nil, failed("template", err)
	}

	tenant, err := g.catalog.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	refs := styles.ThemeRefs{VersionOverride: doc.ThemeOverride(), TemplateDefault: tmpl.ThemeID}
	if tenant != nil {
		refs.TenantDefault = tenant.DefaultThemeID
	}
	resolved, err := g.styles.Resolve(ctx, tenantID, refs, doc.DocumentStyles)
	if err != nil {
		return nil, err
	}
	for _, id := range resolved.Missing {
		g.log.Warn("Referenced theme not found, falling back", "tenant_id", tenantID, "theme_id", id, "template_id", tmpl.ID)
	}

	_, renderSpan := observability.StartSpan(ctx, "generation.render")
	out, err := g.engine.Render(doc, data, resolved)
	observability.EndSpan(renderSpan, err)
	if err != nil {
		return nil, failed("render", err)
	}
	for _, w := range out.Warnings {
		g.log.Debug("Render warning", "item_id", item.ID, "node_id", w.NodeID, "expression", w.Expression, "message", w.Message)
	}

	filename := Filename(tmpl, item)
	content, err := g.writer.Write(out, pdf.Meta{Title: filename, CreatedAt: req.CreatedAt})
	if err != nil {
		return nil, failed("layout", err)
	}
	if g.cfg.OptimizePDF {
		if optimized, optErr := pdf.Optimize(content); optErr != nil {
			g.log.Warn("PDF optimisation failed, keeping original", "item_id", item.ID, "error", optErr)
		} else {
			content = optimized
		}
	}
	if max := g.cfg.MaxDocumentSizeBytes; max > 0 && int64(len(content)) > max {
		return nil, failed("size", fmt.Errorf("%w: %d bytes > %d", ErrDocumentTooLarge, len(content), max))
	}
	pages, err := pdf.PageCount(content)
	if err != nil {
		return nil, failed("layout", err)
	}

	return &Artifact{
		Document: &gen.Document{
			ID:          uuid.New(),
			CreatedAt:   g.now(),
			TenantID:    tenantID,
			TemplateID:  tmpl.ID,
			VariantID:   variant.ID,
			VersionID:   version.ID,
			Filename:    filename,
			ContentType: gen.ContentTypePDF,
			SizeBytes:   int64(len(content)),
			PageCount:   pages,
			Content:     content,
		},
		Warnings: out.Warnings,
	}, nil
}

// resolveVersion picks the variant and version an item renders.
//
// An explicit version implies its variant. Otherwise the variant is explicit
// or chosen by attributes, and the environment's activation names the
// published version.
func (g *Generator) resolveVersion(ctx context.Context, tenantID string, tmpl *templates.Template, item *gen.Item) (*templates.Variant, *templates.Version, error) {
	if item.VersionID != nil {
		version, err := g.catalog.GetVersion(ctx, tenantID, *item.VersionID)
		if err != nil {
			return nil, nil, err
		}
		if version == nil {
			return nil, nil, failedf("version", "version %s not found", *item.VersionID)
		}
		if !version.Renderable() {
			return nil, nil, failedf("version", "version %s is %s", version.ID, version.Status)
		}
		if item.VariantID != nil && *item.VariantID != version.VariantID {
			return nil, nil, failedf("version", "version %s does not belong to variant %s", version.ID, *item.VariantID)
		}
		variant, err := g.catalog.GetVariant(ctx, tenantID, version.VariantID)
		if err != nil {
			return nil, nil, err
		}
		if variant == nil || variant.TemplateID != tmpl.ID {
			return nil, nil, failedf("version", "version %s does not belong to template %s", version.ID, tmpl.ID)
		}
		return variant, version, nil
	}

	if item.EnvironmentID == nil {
		return nil, nil, failedf("version", "item names neither a version nor an environment")
	}
	variant, err := g.resolveVariant(ctx, tenantID, tmpl, item)
	if err != nil {
		return nil, nil, err
	}
	version, err := g.catalog.GetActiveVersion(ctx, tenantID, *item.EnvironmentID, variant.ID)
	if err != nil {
		return nil, nil, err
	}
	if version == nil {
		return nil, nil, failedf("version", "no version of variant %s is active in environment %s", variant.ID, *item.EnvironmentID)
	}
	if version.Status != templates.VersionPublished {
		return nil, nil, failedf("version", "active version %s is %s", version.ID, version.Status)
	}
	return variant, version, nil
}

func (g *Generator) resolveVariant(ctx context.Context, tenantID string, tmpl *templates.Template, item *gen.Item) (*templates.Variant, error) {
	if item.VariantID != nil {
		v, err := g.catalog.GetVariant(ctx, tenantID, *item.VariantID)
		if err != nil {
			return nil, err
		}
		if v == nil || v.TemplateID != tmpl.ID {
			return nil, failedf("variant", "variant %s not found for template %s", *item.VariantID, tmpl.ID)
		}
		return v, nil
	}
	sel, err := item.Selector()
	if err != nil {
		return nil, failedf("variant", "decode variant selector: %v", err)
	}
	var criteria variants.Criteria
	if sel != nil {
		criteria = variants.Criteria{Required: sel.Required, Optional: sel.Optional}
	}
	candidates, err := g.catalog.ListVariants(ctx, tenantID, tmpl.ID)
	if err != nil {
		return nil, err
	}
	// Without any attributes every variant ties, so the default stands in.
	if len(criteria.Required) == 0 && len(criteria.Optional) == 0 {
		for _, v := range candidates {
			if v.IsDefault {
				return v, nil
			}
		}
	}
	v, err := variants.Resolve(candidates, criteria)
	if err != nil {
		return nil, failed("variant", err)
	}
	return v, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename is the item's requested filename, or one derived from the
// template name and item position. It always ends in .pdf.
func Filename(tmpl *templates.Template, item *gen.Item) string {
	name := ""
	if item.Filename != nil {
		name = path.Base(strings.ReplaceAll(strings.TrimSpace(*item.Filename), `\`, "/"))
	}
	if name == "" || name == "." || name == "/" {
		base := strings.Trim(unsafeFilename.ReplaceAllString(tmpl.Name, "-"), "-")
		if base == "" {
			base = "document"
		}
		name = fmt.Sprintf("%s-%d", strings.ToLower(base), item.Position+1)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
