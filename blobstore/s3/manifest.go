package s3

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"

	"github.com/hupe1980/gridstore/blobstore"
)

// DDBClient is the subset of *dynamodb.Client the manifest uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

const (
	attrGrid     = "grid_uri"
	attrName     = "blob_name"
	attrEncoding = "blob_encoding"
	attrSize     = "blob_size"
	attrChecksum = "blob_checksum"
	attrVersion  = "entry_version"
)

var _ blobstore.Manifest = (*DDBManifest)(nil)

// DDBManifest implements blobstore.Manifest on a DynamoDB table. Puts are
// conditional writes on the entry version, so two processes swapping the same
// grid cannot silently overwrite each other's entries.
//
// Table schema:
//   - Partition key: grid_uri (string), one partition per grid
//   - Sort key: blob_name (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name gridstore-manifest \
//	  --attribute-definitions AttributeName=grid_uri,AttributeType=S AttributeName=blob_name,AttributeType=S \
//	  --key-schema AttributeName=grid_uri,KeyType=HASH AttributeName=blob_name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBManifest struct {
	client  DDBClient
	table   string
	gridURI string
}

// NewDDBManifest returns a manifest for the grid identified by gridURI,
// typically "s3://bucket/prefix".
func NewDDBManifest(client DDBClient, table, gridURI string) *DDBManifest {
	return &DDBManifest{client: client, table: table, gridURI: gridURI}
}

func (m *DDBManifest) key(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrGrid: &types.AttributeValueMemberS{Value: m.gridURI},
		attrName: &types.AttributeValueMemberS{Value: name},
	}
}

func (m *DDBManifest) Get(ctx context.Context, name string) (blobstore.Entry, error) {
	resp, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(m.table),
		Key:            m.key(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return blobstore.Entry{}, errors.Wrapf(err, "get manifest entry %s", name)
	}
	if len(resp.Item) == 0 {
		return blobstore.Entry{}, errors.Wrapf(blobstore.ErrNotFound, "manifest entry %s", name)
	}
	return decodeEntry(resp.Item)
}

func (m *DDBManifest) Put(ctx context.Context, e blobstore.Entry) (blobstore.Entry, error) {
	next := e
	next.Version = e.Version + 1

	in := &dynamodb.PutItemInput{
		TableName: aws.String(m.table),
		Item:      m.encodeEntry(next),
	}
	if e.Version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(" + attrName + ")")
	} else {
		in.ConditionExpression = aws.String(attrVersion + " = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Version, 10)},
		}
	}

	if _, err := m.client.PutItem(ctx, in); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.Entry{}, errors.Wrapf(blobstore.ErrConcurrentModification,
				"%s at version %d", e.Name, e.Version)
		}
		return blobstore.Entry{}, errors.Wrapf(err, "put manifest entry %s", e.Name)
	}
	return next, nil
}

func (m *DDBManifest) Delete(ctx context.Context, name string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(m.table),
		Key:       m.key(name),
	})
	if err != nil {
		return errors.Wrapf(err, "delete manifest entry %s", name)
	}
	return nil
}

// List queries the grid partition; DynamoDB returns it sorted by name.
func (m *DDBManifest) List(ctx context.Context, prefix string) ([]blobstore.Entry, error) {
	cond := attrGrid + " = :g"
	values := map[string]types.AttributeValue{
		":g": &types.AttributeValueMemberS{Value: m.gridURI},
	}
	if prefix != "" {
		cond += " AND begins_with(" + attrName + ", :p)"
		values[":p"] = &types.AttributeValueMemberS{Value: prefix}
	}

	var out []blobstore.Entry
	paginator := dynamodb.NewQueryPaginator(m.client, &dynamodb.QueryInput{
		TableName:                 aws.String(m.table),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "list manifest %s", m.gridURI)
		}
		for _, item := range page.Items {
			e, err := decodeEntry(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *DDBManifest) encodeEntry(e blobstore.Entry) map[string]types.AttributeValue {
	item := m.key(e.Name)
	item[attrEncoding] = &types.AttributeValueMemberS{Value: e.Encoding}
	item[attrSize] = &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Size, 10)}
	item[attrChecksum] = &types.AttributeValueMemberN{Value: strconv.FormatUint(e.Checksum, 10)}
	item[attrVersion] = &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Version, 10)}
	return item
}

func decodeEntry(item map[string]types.AttributeValue) (blobstore.Entry, error) {
	var (
		e   blobstore.Entry
		err error
	)
	str := func(attr string) string {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		err = errors.CombineErrors(err, errors.Newf("manifest item: missing string attribute %s", attr))
		return ""
	}
	num := func(attr string) string {
		if v, ok := item[attr].(*types.AttributeValueMemberN); ok {
			return v.Value
		}
		err = errors.CombineErrors(err, errors.Newf("manifest item: missing number attribute %s", attr))
		return "0"
	}

	e.Name = str(attrName)
	e.Encoding = str(attrEncoding)
	size, perr := strconv.ParseInt(num(attrSize), 10, 64)
	err = errors.CombineErrors(err, perr)
	sum, perr := strconv.ParseUint(num(attrChecksum), 10, 64)
	err = errors.CombineErrors(err, perr)
	version, perr := strconv.ParseInt(num(attrVersion), 10, 64)
	err = errors.CombineErrors(err, perr)
	if err != nil {
		return blobstore.Entry{}, err
	}
	e.Size, e.Checksum, e.Version = size, sum, version
	return e, nil
}
