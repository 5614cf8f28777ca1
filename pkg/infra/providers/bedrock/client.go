package bedrock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"golang.org/x/sync/singleflight"
)

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(
		ctx context.Context,
		params *bedrockruntime.ConverseInput,
		optFns ...func(*bedrockruntime.Options),
	) (*bedrockruntime.ConverseOutput, error)
}

type client struct {
	clientPool *sync.Map
	sf         singleflight.Group
	build      func(ctx context.Context, region string) (ConverseAPI, error)
}

// NewBedrockClient resolves AWS credentials from the default chain.
func NewBedrockClient() providers.Client {
	return &client{
		clientPool: &sync.Map{},
		build:      buildRuntimeClient,
	}
}

func buildRuntimeClient(ctx context.Context, region string) (ConverseAPI, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func (c *client) Generate(
	ctx context.Context,
	cfg *providers.Config,
	prompt string,
) (*providers.CompletionResponse, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}

	runtime, err := c.getOrCreateClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(cfg.Model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
	}
	if cfg.MaxTokens > 0 || cfg.Temperature > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{}
		if cfg.MaxTokens > 0 {
			input.InferenceConfig.MaxTokens = aws.Int32(int32(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			input.InferenceConfig.Temperature = aws.Float32(float32(cfg.Temperature))
		}
	}

	output, err := runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke model: %w", err)
	}

	message, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("no completions returned")
	}
	var sb strings.Builder
	for _, block := range message.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no text content returned")
	}

	resp := &providers.CompletionResponse{
		ID:       fmt.Sprintf("bedrock-%s", cfg.Model),
		Provider: providers.ProviderBedrock,
		Model:    cfg.Model,
		Response: sb.String(),
	}
	if output.Usage != nil {
		resp.Usage = providers.Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func (c *client) getOrCreateClient(ctx context.Context, region string) (ConverseAPI, error) {
	if v, ok := c.clientPool.Load(region); ok {
		if cli, ok := v.(ConverseAPI); ok {
			return cli, nil
		}
	}
	v, err, _ := c.sf.Do(region, func() (any, error) {
		if v2, ok := c.clientPool.Load(region); ok {
			return v2, nil
		}
		cli, err := c.build(ctx, region)
		if err != nil {
			return nil, err
		}
		c.clientPool.Store(region, cli)
		return cli, nil
	})
	if err != nil {
		return nil, err
	}
	cli, ok := v.(ConverseAPI)
	if !ok {
		return nil, fmt.Errorf("unexpected bedrock client type %T", v)
	}
	return cli, nil
}
