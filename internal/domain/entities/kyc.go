package entities

import "fmt"

// KycDataType discriminates individual from legal-entity KYC payloads.
type KycDataType string

const (
	KycDataTypeIndividual KycDataType = "individual"
	KycDataTypeEntity     KycDataType = "entity"
)

const (
	KycDataPayloadType    = "KYC_DATA"
	KycDataPayloadVersion = 1
)

// NationalID carries national identification data for an account holder.
type NationalID struct {
	IDValue *string `json:"id_value,omitempty"`
	Country *string `json:"country,omitempty"`
	Type    *string `json:"type,omitempty"`
}

// Address is a physical address. For place-of-birth usage line1/line2 stay
// empty.
type Address struct {
	City       *string `json:"city,omitempty"`
	Country    *string `json:"country,omitempty"`
	Line1      *string `json:"line1,omitempty"`
	Line2      *string `json:"line2,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	State      *string `json:"state,omitempty"`
}

// KycData is the travel-rule KYC payload attached to a payment actor.
// AdditionalKycData is free-form data used to clear a soft match; whether it
// is set is state-significant.
type KycData struct {
	Type            KycDataType `json:"type"`
	PayloadType     string      `json:"payload_type"`
	PayloadVersion  int         `json:"payload_version"`
	GivenName       *string     `json:"given_name,omitempty"`
	Surname         *string     `json:"surname,omitempty"`
	Address         *Address    `json:"address,omitempty"`
	DOB             *string     `json:"dob,omitempty"`
	PlaceOfBirth    *Address    `json:"place_of_birth,omitempty"`
	NationalID      *NationalID `json:"national_id,omitempty"`
	LegalEntityName *string     `json:"legal_entity_name,omitempty"`

	AdditionalKycData *string `json:"additional_kyc_data,omitempty"`
}

// NewKycData returns a KycData with the constant payload tag and version set.
func NewKycData(typ KycDataType) *KycData {
	return &KycData{
		Type:           typ,
		PayloadType:    KycDataPayloadType,
		PayloadVersion: KycDataPayloadVersion,
	}
}

func (k *KycData) Validate() error {
	switch k.Type {
	case KycDataTypeIndividual, KycDataTypeEntity:
	default:
		return fmt.Errorf("kyc_data: invalid type %q", k.Type)
	}
	if k.PayloadType != KycDataPayloadType {
		return fmt.Errorf("kyc_data: payload_type must be %q, got %q", KycDataPayloadType, k.PayloadType)
	}
	if k.PayloadVersion != KycDataPayloadVersion {
		return fmt.Errorf("kyc_data: payload_version must be %d, got %d", KycDataPayloadVersion, k.PayloadVersion)
	}
	return nil
}
