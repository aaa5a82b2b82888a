// Command lambda serves the GitHub webhook behind API Gateway.
//
// HUBHOOK_CONFIG points at an optional YAML config bundled with the function; without it
// the defaults apply and the secret is read from Secrets Manager.
package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"hubhook/internal"
	"hubhook/webhook"
)

func main() {
	logger := internal.NewLogger("lambda")

	var (
		config internal.Config
		err    error
	)
	if path := os.Getenv("HUBHOOK_CONFIG"); path != "" {
		config, err = internal.LoadConfig(path)
	} else {
		config, err = internal.ParseConfig(nil)
	}
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	dispatcher, closeDispatcher, err := webhook.NewDispatcherFromConfig(config, logger)
	if err != nil {
		logger.Fatalf("dispatcher: %v", err)
	}
	defer closeDispatcher()

	handler, err := webhook.NewLambdaHandler(dispatcher)
	if err != nil {
		logger.Fatalf("lambda handler: %v", err)
	}
	lambda.Start(handler.Handle)
}
