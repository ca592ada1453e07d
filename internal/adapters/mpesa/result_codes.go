package mpesa

// Callback ResultCode values seen in production
const (
	ResultSuccess             = 0
	ResultInsufficientBalance = 1
	ResultSubscriberLocked    = 1001
	ResultTransactionExpired  = 1019
	ResultPushError           = 1025
	ResultCancelledByUser     = 1032
	ResultUnreachable         = 1037
	ResultInvalidPIN          = 2001
	ResultSystemError         = 9999
)

// ResultCodeInfo describes a callback result code
type ResultCodeInfo struct {
	Description string
	UserMessage string
	Code        int
	IsApproved  bool
	IsRetriable bool
}

var resultCodes = map[int]ResultCodeInfo{
	ResultSuccess: {
		Code:        ResultSuccess,
		Description: "The service request is processed successfully",
		IsApproved:  true,
		UserMessage: "Payment received",
	},
	ResultInsufficientBalance: {
		Code:        ResultInsufficientBalance,
		Description: "The balance is insufficient for the transaction",
		UserMessage: "Your M-Pesa balance is too low. Top up and try again.",
		IsRetriable: true,
	},
	ResultSubscriberLocked: {
		Code:        ResultSubscriberLocked,
		Description: "Unable to lock subscriber, a transaction is already in process",
		UserMessage: "Another M-Pesa request is open on your phone. Finish it and try again.",
		IsRetriable: true,
	},
	ResultTransactionExpired: {
		Code:        ResultTransactionExpired,
		Description: "Transaction has expired",
		UserMessage: "The payment request expired. Please try again.",
		IsRetriable: true,
	},
	ResultPushError: {
		Code:        ResultPushError,
		Description: "An error occurred while sending a push request",
		UserMessage: "We could not reach your phone. Please try again.",
		IsRetriable: true,
	},
	ResultCancelledByUser: {
		Code:        ResultCancelledByUser,
		Description: "Request cancelled by user",
		UserMessage: "You cancelled the payment.",
		IsRetriable: true,
	},
	ResultUnreachable: {
		Code:        ResultUnreachable,
		Description: "DS timeout, user cannot be reached",
		UserMessage: "Your phone could not be reached. Check it is on and try again.",
		IsRetriable: true,
	},
	ResultInvalidPIN: {
		Code:        ResultInvalidPIN,
		Description: "The initiator information is invalid",
		UserMessage: "Wrong M-Pesa PIN entered.",
		IsRetriable: true,
	},
	ResultSystemError: {
		Code:        ResultSystemError,
		Description: "An error occurred while processing the request",
		UserMessage: "M-Pesa is having trouble. Please try again shortly.",
		IsRetriable: true,
	},
}

// GetResultCode returns details for a callback result code
func GetResultCode(code int) ResultCodeInfo {
	if info, exists := resultCodes[code]; exists {
		return info
	}
	return ResultCodeInfo{
		Code:        code,
		Description: "Unknown result code",
		UserMessage: "Payment was not completed. Please try again.",
	}
}
