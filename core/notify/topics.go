package notify

// Topic channels are scoped to the request, the requester and each candidate.

func RequestTopic(requestID string) string {
	return "petriage/request/" + requestID
}

func UserTopic(userID string) string {
	return "petriage/user/" + userID
}

func VetTopic(vetID string) string {
	return "petriage/vet/" + vetID
}
