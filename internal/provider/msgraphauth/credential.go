// Package msgraphauth builds an authenticated Microsoft Graph client from
// the Token Store (C1), shared by every Microsoft-backed adapter
// (microsoftemail, onedrive, outlookcalendar) so the azcore.TokenCredential
// plumbing is written once instead of per-package.
package msgraphauth

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"

	creddomain "github.com/syncorch/syncd/internal/credentials/domain"
	credusecase "github.com/syncorch/syncd/internal/credentials/usecase"
	"github.com/syncorch/syncd/pkg/errs"
)

// staticTokenCredential reads through to the Token Store on every call
// instead of caching a token in memory, so a refresh performed by one
// adapter instance is immediately visible to the next GetToken call.
type staticTokenCredential struct {
	userID string
	store  *credusecase.Store
}

func (c *staticTokenCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	result := c.store.Check(ctx, c.userID, creddomain.ProviderMicrosoft)
	if !result.Authenticated || !result.Valid {
		return azcore.AccessToken{}, errs.New(errs.AuthFailed, "microsoft credential not valid", result.Err)
	}
	cred, _, err := c.store.Load(c.userID, creddomain.ProviderMicrosoft)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	expiry := cred.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return azcore.AccessToken{Token: cred.AccessToken, ExpiresOn: expiry}, nil
}

// NewGraphClient authenticates userID against the Token Store and returns
// a ready-to-use Graph client scoped to the default Graph permissions.
func NewGraphClient(ctx context.Context, userID string, store *credusecase.Store) (*msgraphsdk.GraphServiceClient, error) {
	cred := &staticTokenCredential{userID: userID, store: store}
	return msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{"https://graph.microsoft.com/.default"})
}
