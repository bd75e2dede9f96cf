package types

// OutboundMessage is an application payload handed to the dispatcher. A nil
// Target broadcasts to every connected client.
type OutboundMessage struct {
	Data   []byte
	Target *ConnID
}

// Broadcast returns an outbound message addressed to every client.
func Broadcast(data []byte) OutboundMessage { return OutboundMessage{Data: data} }

// Unicast returns an outbound message addressed to a single connection.
func Unicast(id ConnID, data []byte) OutboundMessage {
	return OutboundMessage{Data: data, Target: &id}
}

// Received is the value published on the "received" output.
type Received struct {
	ConnID ConnID
	Data   []byte
}

// SessionKeyRequest is what the coordinator asks the authority for. The
// transport details and long-term keys are bound by the client.
type SessionKeyRequest struct {
	RequesterName   EntityName
	Purpose         Purpose
	NumKeys         int
	DistributionKey *DistributionKey
}

// SessionKeyResponse carries the issued keys and, when the authority rotated
// it, the new distribution key.
type SessionKeyResponse struct {
	Keys            []SessionKey
	DistributionKey *DistributionKey
}
