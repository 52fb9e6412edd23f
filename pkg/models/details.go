package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	ServiceEngraving    ServiceType = "engraving"
	ServiceCutting      ServiceType = "cutting"
	ServiceDesign       ServiceType = "design"
	ServiceShop         ServiceType = "shop"
	ServiceConsultation ServiceType = "consultation"
)

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceEngraving, ServiceCutting, ServiceDesign, ServiceShop, ServiceConsultation:
		return true
	}
	return false
}

// Details is the service-specific payload of an order. The set of
// implementations is closed: only the variants in this file satisfy it.
type Details interface {
	Service() ServiceType
	isDetails()
}

type EngravingDetails struct {
	Material    string          `json:"material"`
	Size        string          `json:"size,omitempty"`
	Quantity    int             `json:"quantity,omitempty"`
	Area        decimal.Decimal `json:"area"`
	Complexity  decimal.Decimal `json:"complexity"`
	Description string          `json:"description,omitempty"`
}

type CuttingDetails struct {
	Material    string          `json:"material"`
	Length      decimal.Decimal `json:"length"`
	DetailCount int             `json:"detailCount"`
	Thickness   string          `json:"thickness,omitempty"`
	Description string          `json:"description,omitempty"`
}

type DesignDetails struct {
	Description  string `json:"description,omitempty"`
	Requirements string `json:"requirements,omitempty"`
}

// ShopItem is a snapshot of a catalog product taken when the order was placed.
type ShopItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type ShopDetails struct {
	Items []ShopItem `json:"items"`
}

type ConsultationDetails struct {
	Topic string `json:"topic,omitempty"`
}

func (EngravingDetails) Service() ServiceType    { return ServiceEngraving }
func (CuttingDetails) Service() ServiceType      { return ServiceCutting }
func (DesignDetails) Service() ServiceType       { return ServiceDesign }
func (ShopDetails) Service() ServiceType         { return ServiceShop }
func (ConsultationDetails) Service() ServiceType { return ServiceConsultation }

func (EngravingDetails) isDetails()    {}
func (CuttingDetails) isDetails()      {}
func (DesignDetails) isDetails()       {}
func (ShopDetails) isDetails()         {}
func (ConsultationDetails) isDetails() {}

// DecodeDetails restores a detail variant stored as its own JSON document.
func DecodeDetails(service ServiceType, raw []byte) (Details, error) {
	var (
		details Details
		err     error
	)
	switch service {
	case ServiceEngraving:
		var d EngravingDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ServiceCutting:
		var d CuttingDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ServiceDesign:
		var d DesignDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ServiceShop:
		var d ShopDetails
		err = json.Unmarshal(raw, &d)
		details = d
	case ServiceConsultation:
		var d ConsultationDetails
		err = json.Unmarshal(raw, &d)
		details = d
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", service, err)
	}
	return details, nil
}
