package handlers

import (
	"github.com/notemark/notemark/internal/app/service/statistics"
	subsvc "github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespWebhook wraps WebhookResult in the standard envelope.
type RespWebhook struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    WebhookResult            `json:"data"`
}

// RespListSubscriptions wraps subscription.ListResponse in the standard envelope.
type RespListSubscriptions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subsvc.ListResponse      `json:"data"`
}

// RespSubscriptionStatistic wraps SubscriptionStatisticResponse in the standard envelope.
type RespSubscriptionStatistic struct {
	Code    response.APIResponseCode                 `json:"code"`
	Message string                                   `json:"message"`
	Data    statistics.SubscriptionStatisticResponse `json:"data"`
}
