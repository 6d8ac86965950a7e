package services

import "errors"

// Each error's text is safe to show to an end user.
var (
	ErrInvalidQuantity       = errors.New("quantity must be a positive whole number")
	ErrPaymentMethodRequired = errors.New("a payment method is required")
	ErrListingNotFound       = errors.New("listing not found")
	ErrCannotBuyOwnListing   = errors.New("you cannot buy your own listing")
	ErrListingNotListed      = errors.New("this item is not available for purchase")
	ErrSellerNotFound        = errors.New("the seller of this item could not be found")
	ErrInsufficientStock     = errors.New("this item is no longer available")
	ErrRequestKeyReused      = errors.New("this request key was already used for a different order")

	ErrOrderNotFound             = errors.New("order not found")
	ErrUnknownStatus             = errors.New("unknown order status")
	ErrNotOrderParty             = errors.New("you are not a party to this order")
	ErrNotAuthorized             = errors.New("you are not allowed to make this change")
	ErrInvalidTransition         = errors.New("this status change is not allowed")
	ErrCannotCancelAfterShipping = errors.New("cannot cancel after shipping")
	ErrTransitionConflict        = errors.New("the order was updated by someone else, reload and try again")

	ErrPromotionNotFound      = errors.New("promotion not found")
	ErrPromotionAlreadyActive = errors.New("this listing is already boosted")
	ErrInvalidBoostDuration   = errors.New("a boost must last between 1 and 30 days")
	ErrFreeBoostUsed          = errors.New("your free boost has already been used")
	ErrNotListingOwner        = errors.New("you can only boost your own listings")
	ErrNotPromotionOwner      = errors.New("you can only view your own promotions")
	ErrConversationNotFound   = errors.New("conversation not found")
)

// ErrListingSold is reported when a listing is already sold at placement.
var ErrListingSold error = soldError{}

// soldError is the precondition form of ErrInsufficientStock: a buyer who
// reads the listing after a competing order committed sees it instead.
type soldError struct{}

func (soldError) Error() string { return "this item has already been sold" }

func (soldError) Is(target error) bool { return target == ErrInsufficientStock }
