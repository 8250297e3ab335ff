package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// transformResultSchema is the structured output contract. The model is
// forced onto it via response_format and the reply is re-validated locally
// before use, since providers occasionally return schema-shaped junk.
const transformResultSchema = `{
  "type": "object",
  "properties": {
    "cleaned_text": {"type": "string"},
    "modified": {"type": "boolean"},
    "detected_changes": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "required": ["cleaned_text", "modified", "detected_changes"],
  "additionalProperties": false
}`

var compiledTransformSchema = jsonschema.MustCompileString("transform_result.json", transformResultSchema)

// OpenAIConfig configures the OpenAI-backed oracle client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// RPM caps requests per minute across all chapter workers.
	RPM int
}

// OpenAIClient implements Client against the OpenAI chat completions API.
// It makes exactly one attempt per Transform call; the pipeline owns retry
// and backoff so waits are visible to progress reporting.
type OpenAIClient struct {
	model       string
	client      openai.Client
	rateLimiter *RateLimiter
}

// NewOpenAIClient creates an OpenAI oracle client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 60
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retries are owned by the caller.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		client:      openai.NewClient(opts...),
		rateLimiter: NewRateLimiter(cfg.RPM),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// SetRateLimit updates the request budget mid-run, for config hot reload.
func (c *OpenAIClient) SetRateLimit(requestsPerMinute int) {
	c.rateLimiter.SetRPM(requestsPerMinute)
}

// Transform rewrites text according to policy via one chat completion.
func (c *OpenAIClient) Transform(ctx context.Context, text string, policy Policy) (*TransformResult, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var schemaDoc any
	if err := json.Unmarshal([]byte(transformResultSchema), &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to parse transform schema: %w", err)
	}

	requestID := uuid.New().String()
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(policy)),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0.2),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "transform_result",
					Description: openai.String("Rewritten text with removal metadata"),
					Schema:      schemaDoc,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Request-ID", requestID))
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices (request %s)", requestID)
	}

	return parseTransformResult(resp.Choices[0].Message.Content)
}

// parseTransformResult validates the raw reply against the schema before
// decoding, so a malformed reply fails loudly instead of blanking content.
func parseTransformResult(content string) (*TransformResult, error) {
	content = strings.TrimSpace(content)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("oracle reply is not valid JSON: %w", err)
	}
	if err := compiledTransformSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("oracle reply failed schema validation: %w", err)
	}

	var result TransformResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("failed to decode oracle reply: %w", err)
	}
	return &result, nil
}

// mapError converts API errors into the package taxonomy. Rate limits feed
// back into the limiter so concurrent workers observe the cool-off too.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			c.rateLimiter.Record429(retryAfter)
			return &RateLimitError{
				Message:    fmt.Sprintf("oracle rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("oracle error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("oracle error (status %d)", apiErr.StatusCode)
	}
	return err
}

// systemPrompt renders the policy into transformation instructions. The
// paragraph-marker requirement is what reconciliation depends on.
func systemPrompt(policy Policy) string {
	var b strings.Builder
	b.WriteString("You revise book text to remove objectionable content while preserving the story.\n")
	b.WriteString("Rewrite the user's text, removing or softening content in these categories (level 0 = remove nothing, higher levels = remove more):\n")
	for _, cat := range policy.Categories() {
		fmt.Fprintf(&b, "- %s: level %d\n", cat, policy.CategoryLevels[cat])
	}
	if len(policy.WordList) > 0 {
		fmt.Fprintf(&b, "Always remove or replace these words: %s\n", strings.Join(policy.WordList, ", "))
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Keep paragraphs separated by a blank line, exactly as in the input.\n")
	b.WriteString("- Keep the same number of paragraphs; never merge or split them.\n")
	b.WriteString("- Leave unobjectionable text byte-for-byte unchanged.\n")
	b.WriteString("- Respond with JSON: cleaned_text (the full rewritten text), modified (whether anything changed), detected_changes (category tags for what was removed).\n")
	return b.String()
}
