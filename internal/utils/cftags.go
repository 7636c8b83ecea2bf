package utils

import (
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// MergeTags merges multiple tag maps with later maps having higher precedence
// Returns a CloudFormation tag list sorted by key
func MergeTags(tt ...map[string]string) []types.Tag {
	m := map[string]string{}
	for _, t := range tt {
		maps.Copy(m, t)
	}

	var results []types.Tag
	for _, k := range slices.Sorted(maps.Keys(m)) {
		results = append(results, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(m[k]),
		})
	}

	return results
}
