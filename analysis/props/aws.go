// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package props

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/awslabs/adg-policy/analysis/adg"
	"github.com/awslabs/adg-policy/analysis/config"
)

// AWSLookup resolves the region of S3 buckets and DynamoDB tables by querying the deployed account
type AWSLookup struct {
	// locateBucket returns the location constraint of a bucket
	locateBucket func(ctx context.Context, bucket string) (string, error)
	// tableARN returns the ARN of a table
	tableARN func(ctx context.Context, table string) (string, error)
	logger   *config.LogGroup
}

// NewAWSLookup returns a lookup using the shared config profile, or the default credential chain when profile is
// empty. region selects the API endpoints; the region of the shared config is used when it is empty.
func NewAWSLookup(ctx context.Context, profile, region string, logger *config.LogGroup) (*AWSLookup, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	s3Client := s3.NewFromConfig(cfg)
	ddbClient := dynamodb.NewFromConfig(cfg)
	return &AWSLookup{
		locateBucket: func(ctx context.Context, bucket string) (string, error) {
			out, err := s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
			if err != nil {
				return "", err
			}
			return string(out.LocationConstraint), nil
		},
		tableARN: func(ctx context.Context, table string) (string, error) {
			out, err := ddbClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
			if err != nil {
				return "", err
			}
			if out.Table == nil {
				return "", fmt.Errorf("no description of table %s", table)
			}
			return aws.ToString(out.Table.TableArn), nil
		},
		logger: logger,
	}, nil
}

// bucketRegion converts an S3 location constraint to a region. Buckets in us-east-1 have no constraint, and EU is
// the legacy name of eu-west-1.
func bucketRegion(constraint string) string {
	switch constraint {
	case "":
		return "us-east-1"
	case "EU":
		return "eu-west-1"
	}
	return constraint
}

// Lookup implements policy.PropertyLookup. Only the ResourceRegion of S3 buckets and DynamoDB tables is resolved.
func (l *AWSLookup) Lookup(ctx context.Context, prop string, node *adg.Node) (string, error) {
	if prop != ResourceRegion || (node.Kind != adg.S3Bucket && node.Kind != adg.DynamoDBTable) {
		return "", fmt.Errorf("%w: %s of %s is not an S3 or DynamoDB region", ErrUnknownProperty, prop,
			node.Resource)
	}
	name := node.Resource.Name
	if node.Attrs.Mapped != nil {
		name = node.Attrs.Mapped.PhysicalName()
	}
	var region string
	if node.Kind == adg.S3Bucket {
		constraint, err := l.locateBucket(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to get location of bucket %s: %w", name, err)
		}
		region = bucketRegion(constraint)
	} else {
		s, err := l.tableARN(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to describe table %s: %w", name, err)
		}
		a, err := arn.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid ARN of table %s: %w", name, err)
		}
		region = a.Region
	}
	if l.logger != nil {
		l.logger.Debugf("%s %s is located in %s", node.Kind, name, region)
	}
	return region, nil
}
