package types

import "fmt"

// Purpose is the authorization metadata attached to a session key request.
// Exactly one field is set.
type Purpose struct {
	KeyID      *KeyID `cbor:"keyId,omitempty" json:"keyId,omitempty"`
	CachedKeys int    `cbor:"cachedKeys,omitempty" json:"cachedKeys,omitempty"`
	PubTopic   string `cbor:"pubTopic,omitempty" json:"pubTopic,omitempty"`
	Group      string `cbor:"group,omitempty" json:"group,omitempty"`
}

// PurposeKeyID asks for one specific, previously issued key.
func PurposeKeyID(id KeyID) Purpose { return Purpose{KeyID: &id} }

// PurposeCachedKeys asks for fresh keys that future clients of the given
// group will present.
func PurposeCachedKeys(group int) Purpose { return Purpose{CachedKeys: group} }

// PurposePubTopic asks for keys used to publish on topic.
func PurposePubTopic(topic string) Purpose { return Purpose{PubTopic: topic} }

// PurposeGroup asks for keys to talk to members of a named group. Clients use
// it to obtain the key they later present to a server.
func PurposeGroup(group string) Purpose { return Purpose{Group: group} }

// String renders the purpose the way it appears in logs.
func (p Purpose) String() string {
	switch {
	case p.KeyID != nil:
		return fmt.Sprintf("{keyId:%d}", *p.KeyID)
	case p.PubTopic != "":
		return fmt.Sprintf("{pubTopic:%s}", p.PubTopic)
	case p.Group != "":
		return fmt.Sprintf("{group:%s}", p.Group)
	default:
		return fmt.Sprintf("{cachedKeys:%d}", p.CachedKeys)
	}
}
