package tools

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

//go:embed docs/*.txt
var docsFS embed.FS

// DefaultAllowlist is the set of URLs http_get may fetch.
var DefaultAllowlist = []string{
	"https://example.com",
	"https://httpbin.org/get",
}

var exprPattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*([+\-*/])\s*(-?\d+(?:\.\d+)?)\s*$`)

// Builtin holds the state of the built-in tools.
type Builtin struct {
	mu sync.RWMutex
	kv map[string]string

	docs      []string
	allowlist map[string]struct{}
	client    *http.Client
}

// BuiltinOption configures the built-in tools.
type BuiltinOption func(*Builtin)

// WithAllowlist replaces the URLs http_get may fetch.
func WithAllowlist(urls ...string) BuiltinOption {
	return func(b *Builtin) {
		b.allowlist = make(map[string]struct{}, len(urls))
		for _, u := range urls {
			b.allowlist[strings.ToLower(u)] = struct{}{}
		}
	}
}

// WithHTTPClient sets the client used by http_get.
func WithHTTPClient(c *http.Client) BuiltinOption {
	return func(b *Builtin) {
		if c != nil {
			b.client = c
		}
	}
}

// WithDocs replaces the snippets searched by search_docs.
func WithDocs(docs ...string) BuiltinOption {
	return func(b *Builtin) { b.docs = docs }
}

// NewBuiltin creates the built-in tool set.
func NewBuiltin(opts ...BuiltinOption) *Builtin {
	b := &Builtin{
		kv:     make(map[string]string),
		docs:   loadDocs(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	WithAllowlist(DefaultAllowlist...)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func loadDocs() []string {
	var docs []string
	_ = fs.WalkDir(docsFS, "docs", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := docsFS.ReadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, string(data))
		return nil
	})
	return docs
}

// Register adds every built-in tool to r.
func (b *Builtin) Register(r *Registry) {
	r.Register(mcp.NewTool("calc",
		mcp.WithDescription("Evaluate a simple arithmetic expression (a op b)."),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression such as '12 * 7'")),
		mcp.WithReadOnlyHintAnnotation(true),
	), b.calc)

	r.Register(mcp.NewTool("http_get",
		mcp.WithDescription("Fetch content from an allowlisted URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to fetch")),
		mcp.WithReadOnlyHintAnnotation(true),
	), b.httpGet)

	r.Register(mcp.NewTool("kv_put",
		mcp.WithDescription("Store a value in the local key-value store."),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
		mcp.WithDestructiveHintAnnotation(false),
	), b.kvPut)

	r.Register(mcp.NewTool("kv_get",
		mcp.WithDescription("Fetch a value from the local key-value store."),
		mcp.WithString("key", mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), b.kvGet)

	r.Register(mcp.NewTool("search_docs",
		mcp.WithDescription("Search the local documentation snippets."),
		mcp.WithString("query", mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	), b.searchDocs)
}

func (b *Builtin) calc(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("Missing expression."), nil
	}
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return mcp.NewToolResultError("Expression must be in the form 'a op b'."), nil
	}
	left, _ := strconv.ParseFloat(m[1], 64)
	right, _ := strconv.ParseFloat(m[3], 64)

	var result float64
	switch m[2] {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*":
		result = left * right
	case "/":
		if right == 0 {
			return mcp.NewToolResultText("Result: NaN"), nil
		}
		result = left / right
	}
	return mcp.NewToolResultText("Result: " + strconv.FormatFloat(result, 'f', -1, 64)), nil
}

func (b *Builtin) httpGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("Missing url."), nil
	}
	if _, ok := b.allowlist[strings.ToLower(url)]; !ok {
		return mcp.NewToolResultError("URL is not in the allowlist."), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Invalid url.", err), nil
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http_get %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("http_get %s: %w", url, err)
	}
	snippet := string(body)
	if len(snippet) > 300 {
		snippet = snippet[:300] + "..."
	}
	return mcp.NewToolResultText(fmt.Sprintf("Fetched %s (snippet):\n%s", url, snippet)), nil
}

func (b *Builtin) kvPut(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("Missing key."), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("Missing value."), nil
	}

	b.mu.Lock()
	b.kv[key] = value
	b.mu.Unlock()
	return mcp.NewToolResultText("Stored value."), nil
}

func (b *Builtin) kvGet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError("Missing key."), nil
	}

	b.mu.RLock()
	value, ok := b.kv[key]
	b.mu.RUnlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Key '%s' not found.", key)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Value for '%s': %s", key, value)), nil
}

func (b *Builtin) searchDocs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("Missing query."), nil
	}

	needle := strings.ToLower(query)
	var matches []string
	for _, doc := range b.docs {
		for line := range strings.SplitSeq(doc, "\n") {
			if strings.Contains(strings.ToLower(line), needle) {
				matches = append(matches, line)
				if len(matches) == 5 {
					break
				}
			}
		}
		if len(matches) == 5 {
			break
		}
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No matches found."), nil
	}
	return mcp.NewToolResultText("Matches:\n" + strings.Join(matches, "\n")), nil
}
