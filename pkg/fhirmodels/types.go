package fhirmodels

// Common FHIR code constants used by the subscription workflow.

// EncounterStatus values per FHIR R4.
const EncounterStatusInProgress = "in-progress"

// EncounterClass codes per FHIR R4 v3-ActCode.
const (
	EncounterClassSystem  = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	EncounterClassVirtual = "VR"
)

// GenderUnknown is the AdministrativeGender code for placeholder patients.
const GenderUnknown = "unknown"

// NameUseOfficial is the HumanName use code for placeholder patients.
const NameUseOfficial = "official"

// SubscriptionStatusRequested is the status a new Subscription is sent with.
const SubscriptionStatusRequested = "requested"

// Subscription channel types.
const (
	ChannelTypeSystem   = "http://terminology.hl7.org/CodeSystem/subscription-channel-type"
	ChannelTypeRestHook = "rest-hook"
)

// Subscription payload content levels.
const PayloadContentIDOnly = "id-only"

// Notification types carried by subscription-notification bundles.
const (
	NotificationTypeHandshake         = "handshake"
	NotificationTypeHeartbeat         = "heartbeat"
	NotificationTypeEventNotification = "event-notification"
)

// BundleTypeSubscriptionNotification marks a notification bundle.
const BundleTypeSubscriptionNotification = "subscription-notification"
