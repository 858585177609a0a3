package conversation

// State is a step of the booking conversation.
type State string

const (
	StateAskGuestName      State = "ASK_GUEST_NAME"
	StateGreeting          State = "GREETING"
	StateCityList          State = "CITY_LIST"
	StateCitySelect        State = "CITY_SELECT"
	StatePackageList       State = "PACKAGE_LIST"
	StatePackageDetail     State = "PACKAGE_DETAIL"
	StateAskTravelDate     State = "ASK_TRAVEL_DATE"
	StateAskCustomDate     State = "ASK_CUSTOM_DATE"
	StateAskTravelTime     State = "ASK_TRAVEL_TIME"
	StateAskPax            State = "ASK_PAX"
	StateAskVehicle        State = "ASK_VEHICLE"
	StateAskPickupLocation State = "ASK_PICKUP_LOCATION"
	StateAskTransportType  State = "ASK_TRANSPORT_TYPE"
	StateAskPaymentType    State = "ASK_PAYMENT_TYPE"
	StateWaitingForPayment State = "WAITING_FOR_PAYMENT"
	StateConfirmed         State = "CONFIRMED"
	StateDetailsUpdate     State = "DETAILS_UPDATE"
	StateDone              State = "DONE"
)

var knownStates = map[State]bool{
	StateAskGuestName:      true,
	StateGreeting:          true,
	StateCityList:          true,
	StateCitySelect:        true,
	StatePackageList:       true,
	StatePackageDetail:     true,
	StateAskTravelDate:     true,
	StateAskCustomDate:     true,
	StateAskTravelTime:     true,
	StateAskPax:            true,
	StateAskVehicle:        true,
	StateAskPickupLocation: true,
	StateAskTransportType:  true,
	StateAskPaymentType:    true,
	StateWaitingForPayment: true,
	StateConfirmed:         true,
	StateDetailsUpdate:     true,
	StateDone:              true,
}

// Valid reports whether s is a state the engine can dispatch.
func (s State) Valid() bool {
	return knownStates[s]
}

// Booked reports whether a booking row already exists for sessions in this state.
func (s State) Booked() bool {
	switch s {
	case StateWaitingForPayment, StateConfirmed, StateDetailsUpdate, StateDone:
		return true
	}
	return false
}

// AnswersQuestions reports whether a free-text question asked in this state gets a
// FAQ answer. Naming the guest and describing an edit take any text as the answer.
func (s State) AnswersQuestions() bool {
	switch s {
	case StateAskGuestName, StateDetailsUpdate:
		return false
	}
	return true
}

// Interactive reply ids sent back by WhatsApp buttons and list rows.
const (
	tokenCityPrefix    = "CITY_"
	tokenPackagePrefix = "PKG_"
	tokenBookPackage   = "BOOK_PKG"
	tokenBackPackage   = "BACK_PKG"
	tokenDateToday     = "DATE_TODAY"
	tokenDateTomorrow  = "DATE_TOMORROW"
	tokenDateCustom    = "DATE_CUSTOM"
	tokenChangeDate    = "CHANGE_DATE"
	tokenVehiclePrefix = "VEH_OPT_"
	tokenOneWay        = "ONE_WAY"
	tokenRoundTrip     = "ROUND_TRIP"
	tokenPayFull       = "PAY_FULL"
	tokenPayAdvance    = "PAY_40"
	tokenRetryPrefix   = "RETRY_PAYMENT_"
	tokenChangeDetails = "CHANGE_DETAILS"
	tokenConfirmDone   = "CONFIRM_DONE"
	tokenCancelUpdate  = "CANCEL_UPDATE"
)

// Transport types stored on the booking.
const (
	TransportOneWay    = "one_way"
	TransportRoundTrip = "round_trip"
)
