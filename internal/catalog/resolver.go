// Package catalog resolves downloadable model descriptors from a remote
// model index, with quantization preference, size estimation for entries
// the index does not size, and a static fallback list.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pocketllm/pkg/types"
)

// DefaultBaseURL is the HuggingFace-shaped index queried by default.
const DefaultBaseURL = "https://huggingface.co/api"

// DefaultArchitectures is the tag allow-list applied when a search does
// not name its own.
var DefaultArchitectures = []string{"llama", "mistral", "phi", "qwen", "gemma", "tinyllama"}

// SearchOptions bound one catalog query. Zero values select defaults.
type SearchOptions struct {
	MaxSizeBytes  int64
	MinDownloads  int64
	Architectures []string
	Limit         int
}

// indexModel is the remote list entry. Fields beyond id/tags/downloads are
// optional and defaulted; the index is treated as untrusted.
type indexModel struct {
	ID        string   `json:"id"`
	ModelID   string   `json:"modelId"`
	Author    string   `json:"author"`
	Downloads int64    `json:"downloads"`
	Tags      []string `json:"tags"`
}

// indexModelDetails is the per-model detail payload.
type indexModelDetails struct {
	Siblings []indexFile `json:"siblings"`
}

type indexFile struct {
	RFilename string `json:"rfilename"`
	Size      int64  `json:"size"`
}

type ggufFile struct {
	Filename     string
	Size         int64
	Quantization string
	Estimated    bool
}

// Resolver queries the remote model index.
type Resolver struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewResolver builds a resolver against baseURL (DefaultBaseURL if empty).
func NewResolver(baseURL string, log zerolog.Logger) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Search returns ranked descriptors matching opts. A total remote failure
// falls back to the builtin static list; per-entry failures skip only that
// entry. Output order follows the index's popularity sort.
func (r *Resolver) Search(ctx context.Context, opts SearchOptions) []types.Model {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = 2_500_000_000
	}
	if opts.MinDownloads <= 0 {
		opts.MinDownloads = 1000
	}
	if len(opts.Architectures) == 0 {
		opts.Architectures = DefaultArchitectures
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	entries, err := r.fetchIndex(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("model index unreachable, using builtin catalog")
		return Fallback()
	}

	filtered := filterEntries(entries, opts)
	out := make([]types.Model, 0, len(filtered))
	for _, entry := range filtered {
		mdl, err := r.resolveEntry(ctx, entry, opts)
		if err != nil {
			r.log.Debug().Err(err).Str("model", entry.modelID()).Msg("skipping catalog entry")
			continue
		}
		if mdl != nil {
			out = append(out, *mdl)
		}
	}
	return out
}

func (m indexModel) modelID() string {
	if m.ModelID != "" {
		return m.ModelID
	}
	return m.ID
}

func (r *Resolver) fetchIndex(ctx context.Context) ([]indexModel, error) {
	u := fmt.Sprintf("%s/models?search=gguf&filter=gguf&sort=downloads&direction=-1&limit=100", r.baseURL)
	var entries []indexModel
	if err := r.getJSON(ctx, u, &entries); err != nil {
		return nil, fmt.Errorf("fetch model index: %w", err)
	}
	return entries, nil
}

func (r *Resolver) fetchDetails(ctx context.Context, modelID string) (indexModelDetails, error) {
	u := fmt.Sprintf("%s/models/%s", r.baseURL, modelID)
	var details indexModelDetails
	if err := r.getJSON(ctx, u, &details); err != nil {
		return details, fmt.Errorf("fetch model details %s: %w", modelID, err)
	}
	return details, nil
}

func (r *Resolver) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func filterEntries(entries []indexModel, opts SearchOptions) []indexModel {
	out := make([]indexModel, 0, opts.Limit)
	for _, e := range entries {
		if e.Downloads < opts.MinDownloads {
			continue
		}
		if !hasArchitecture(e.Tags, opts.Architectures) {
			continue
		}
		if !hasTag(e.Tags, "gguf") {
			continue
		}
		out = append(out, e)
		if len(out) >= opts.Limit {
			break
		}
	}
	return out
}

func hasArchitecture(tags, architectures []string) bool {
	for _, arch := range architectures {
		for _, tag := range tags {
			if strings.Contains(strings.ToLower(tag), arch) {
				return true
			}
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

// resolveEntry turns one index entry into a descriptor, or (nil, nil) when
// the entry has no acceptable artifact.
func (r *Resolver) resolveEntry(ctx context.Context, entry indexModel, opts SearchOptions) (*types.Model, error) {
	modelID := entry.modelID()
	details, err := r.fetchDetails(ctx, modelID)
	if err != nil {
		return nil, err
	}

	files := extractGGUFFiles(details, modelID, entry.Tags)
	best, ok := selectBestQuantization(files)
	if !ok {
		return nil, nil
	}
	if best.Size > opts.MaxSizeBytes {
		return nil, nil
	}

	desc := fmt.Sprintf("%s model with %d downloads", architectureLabel(entry.Tags, opts.Architectures), entry.Downloads)
	if best.Estimated {
		desc += " (estimated size)"
	}

	return &types.Model{
		ID:          sanitizeID(modelID),
		Name:        fmt.Sprintf("%s – %s", displayName(modelID), best.Quantization),
		Size:        best.Size,
		Description: desc,
		DownloadURL: fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", modelID, url.PathEscape(best.Filename)),
		Filename:    best.Filename,
		ContextSize: estimateContextSize(entry.Tags),
		Downloads:   entry.Downloads,
		Author:      entry.Author,
		Tags:        entry.Tags,
		Quant:       best.Quantization,
	}, nil
}

// extractGGUFFiles collects sized artifact candidates, estimating sizes the
// index does not report.
func extractGGUFFiles(details indexModelDetails, modelID string, tags []string) []ggufFile {
	var out []ggufFile
	for _, f := range details.Siblings {
		if !strings.HasSuffix(strings.ToLower(f.RFilename), ".gguf") {
			continue
		}
		quant := extractQuantization(f.RFilename)
		if quant == "" {
			continue
		}
		size := f.Size
		estimated := false
		if size <= 0 {
			params := extractModelParams(modelID, tags)
			size = estimateModelSize(params, quant)
			estimated = true
		}
		out = append(out, ggufFile{Filename: f.RFilename, Size: size, Quantization: quant, Estimated: estimated})
	}
	return out
}

var idSanitizer = strings.NewReplacer("/", "-", ".", "-", "_", "-", " ", "-")

// sanitizeID flattens a repo path into a stable model id.
func sanitizeID(modelID string) string {
	var b strings.Builder
	for _, r := range idSanitizer.Replace(modelID) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}
