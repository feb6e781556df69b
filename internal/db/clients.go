package db

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Clients holds the AWS service clients the connector talks to. They share
// one aws.Config.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	SNS      *sns.Client
	SSM      *ssm.Client
	Glue     *glue.Client
	Athena   *athena.Client
}

func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	// Uses Lambda's execution role creds automatically
	return config.LoadDefaultConfig(ctx)
}

func NewClients(cfg aws.Config) *Clients {
	return &Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		S3:       s3.NewFromConfig(cfg),
		SNS:      sns.NewFromConfig(cfg),
		SSM:      ssm.NewFromConfig(cfg),
		Glue:     glue.NewFromConfig(cfg),
		Athena:   athena.NewFromConfig(cfg),
	}
}
