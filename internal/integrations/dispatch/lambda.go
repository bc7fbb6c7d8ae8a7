package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	json "github.com/goccy/go-json"

	"filmate/internal/domain"
)

// lambdaAPI is the minimal Lambda interface required by LambdaDispatcher.
// Defined here for testability.
type lambdaAPI interface {
	Invoke(ctx context.Context, in *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// LambdaDispatcher hands chat requests to the worker function with an
// asynchronous (Event) invocation, so the webhook can answer Slack within its
// three second budget.
type LambdaDispatcher struct {
	api          lambdaAPI
	functionName string
}

func NewLambdaDispatcher(api lambdaAPI, functionName string) (*LambdaDispatcher, error) {
	if api == nil {
		return nil, errors.New("dispatch: api must not be nil")
	}
	functionName = strings.TrimSpace(functionName)
	if functionName == "" {
		return nil, errors.New("dispatch: function name must not be empty")
	}
	return &LambdaDispatcher{api: api, functionName: functionName}, nil
}

func (d *LambdaDispatcher) Dispatch(ctx context.Context, req domain.ChatRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("dispatch: encode request: %w", err)
	}
	out, err := d.api.Invoke(ctx, &awslambda.InvokeInput{
		FunctionName:   aws.String(d.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("dispatch: invoke %s: %w", d.functionName, err)
	}
	if out != nil && out.FunctionError != nil {
		return fmt.Errorf("dispatch: invoke %s: function error %s", d.functionName, aws.ToString(out.FunctionError))
	}
	return nil
}
