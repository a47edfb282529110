package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/manyminds/api2go/jsonapi"
)

// subscriptionResource adapts SubscriptionStatus to api2go's jsonapi
// marshaling, without pulling in api2go's full CRUD routing machinery for
// what is a read-only list.
type subscriptionResource struct {
	SubscriptionStatus
}

func (s subscriptionResource) GetID() string { return s.ID }

// registerSubscriptionsResource wires GET /v2/subscriptions, a read-only
// introspection list (current block, last step). Nothing here controls or
// persists a subscription.
func registerSubscriptionsResource(r *gin.Engine, registry *SubscriptionRegistry) {
	r.GET("/v2/subscriptions", func(c *gin.Context) {
		if registry == nil {
			c.JSON(http.StatusOK, gin.H{"data": []interface{}{}})
			return
		}
		statuses := registry.Snapshot()
		resources := make([]jsonapi.MarshalIdentifier, 0, len(statuses))
		for _, s := range statuses {
			resources = append(resources, subscriptionResource{s})
		}
		body, err := jsonapi.Marshal(resources)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "application/vnd.api+json", body)
	})
}
