package main

import (
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"expressless/pkg/server"
)

func main() {
	manager := server.GetContainerManager()

	// PAYLOAD_FORMAT=2.0 serves API Gateway HTTP APIs
	if os.Getenv("PAYLOAD_FORMAT") == "2.0" {
		awslambda.Start(manager.HandleV2)
		return
	}
	awslambda.Start(manager.Handle)
}
