package algorand

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
)

// LookupParams are the query parameters we pass to the account transactions endpoint.
type LookupParams struct {
	Limit     uint64
	MinRound  uint64 // zero means unbounded
	NextToken string
}

// realRPCClient adapts the go-algorand-sdk indexer client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *indexer.Client
}

// NewRPCClient creates a new RPCClient that wraps the SDK indexer client.
// Public endpoints such as https://mainnet-idx.algonode.cloud need no token.
func NewRPCClient(indexerURL, token string) (RPCClient, error) {
	c, err := indexer.MakeClient(indexerURL, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer client: %w", err)
	}
	return &realRPCClient{client: c}, nil
}

func (r *realRPCClient) LookupAccountTransactions(
	ctx context.Context,
	account string,
	params LookupParams,
) (*models.TransactionsResponse, error) {
	req := r.client.LookupAccountTransactions(account).Limit(params.Limit)
	if params.MinRound > 0 {
		req = req.MinRound(params.MinRound)
	}
	if params.NextToken != "" {
		req = req.NextToken(params.NextToken)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
