package domain

import (
	_ "embed"

	"github.com/wms-platform/qrbatch-service/pkg/contracts/asyncapi"
)

// EventContract is the AsyncAPI document of the events this service emits
//
//go:embed asyncapi.yaml
var EventContract []byte

// NewEventContractValidator compiles EventContract
func NewEventContractValidator() (*asyncapi.EventValidator, error) {
	return asyncapi.NewEventValidator(EventContract)
}
