package protocol

import (
	"fmt"
	"strings"
)

// MessageKind is the wire tag identifying a packet's purpose
type MessageKind uint8

// Registered message kinds. Tags are part of the firmware protocol and must
// never be renumbered.
const (
	GetStatus   MessageKind = 1
	GetVersion  MessageKind = 2
	GetConfig   MessageKind = 3
	SetConfig   MessageKind = 4
	SetExposure MessageKind = 5
	ActionHome  MessageKind = 6
	ActionMotor MessageKind = 7
	ActionStack MessageKind = 8
	ActionStop  MessageKind = 9
	ActionPhoto MessageKind = 10
	GetProgress MessageKind = 11
)

// Category groups kinds by direction and intent
type Category uint8

const (
	CategoryGet    Category = iota + 1 // device -> host, host sends no data
	CategorySet                        // host -> device configuration
	CategoryAction                     // host -> device behaviour trigger
)

func (c Category) String() string {
	switch c {
	case CategoryGet:
		return "get"
	case CategorySet:
		return "set"
	case CategoryAction:
		return "action"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// KindInfo is one registry entry
type KindInfo struct {
	Kind       MessageKind
	Name       string
	Category   Category
	Descriptor *PayloadDescriptor // nil when the kind carries no payload
}

var (
	versionDescriptor  = describe(func() Payload { return &Version{} })
	configDescriptor   = describe(func() Payload { return &Config{} })
	exposureDescriptor = describe(func() Payload { return &Exposure{} })
	motorDescriptor    = describe(func() Payload { return &Motor{} })
	progressDescriptor = describe(func() Payload { return &Progress{} })
)

// kindTable is the protocol definition shared by the codec and the CLI
var kindTable = []KindInfo{
	{Kind: GetStatus, Name: "get_status", Category: CategoryGet},
	{Kind: GetVersion, Name: "get_version", Category: CategoryGet, Descriptor: versionDescriptor},
	{Kind: GetConfig, Name: "get_config", Category: CategoryGet, Descriptor: configDescriptor},
	{Kind: SetConfig, Name: "set_config", Category: CategorySet, Descriptor: configDescriptor},
	{Kind: SetExposure, Name: "set_exposure", Category: CategorySet, Descriptor: exposureDescriptor},
	{Kind: ActionHome, Name: "action_home", Category: CategoryAction},
	{Kind: ActionMotor, Name: "action_motor", Category: CategoryAction, Descriptor: motorDescriptor},
	{Kind: ActionStack, Name: "action_stack", Category: CategoryAction},
	{Kind: ActionStop, Name: "action_stop", Category: CategoryAction},
	{Kind: ActionPhoto, Name: "action_photo", Category: CategoryAction},
	{Kind: GetProgress, Name: "get_progress", Category: CategoryGet, Descriptor: progressDescriptor},
}

var (
	kindsByTag  [256]*KindInfo
	kindsByName = make(map[string]*KindInfo, len(kindTable))
	maxPayload  = largestPayload()
)

func largestPayload() int {
	size := 0
	for _, info := range kindTable {
		if info.Descriptor != nil && info.Descriptor.Size > size {
			size = info.Descriptor.Size
		}
	}
	return size
}

func init() {
	for i := range kindTable {
		info := &kindTable[i]
		if kindsByTag[info.Kind] != nil {
			panic(fmt.Sprintf("protocol: duplicate tag %d for %s", info.Kind, info.Name))
		}
		if _, exists := kindsByName[info.Name]; exists {
			panic("protocol: duplicate kind name " + info.Name)
		}
		if !strings.HasPrefix(info.Name, info.Category.String()+"_") {
			panic(fmt.Sprintf("protocol: kind %s is not named after category %s", info.Name, info.Category))
		}
		kindsByTag[info.Kind] = info
		kindsByName[info.Name] = info
	}
}

// Kinds returns the registry in tag order
func Kinds() []KindInfo {
	out := make([]KindInfo, 0, len(kindTable))
	for _, info := range kindsByTag {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// LookupKind returns the registry entry for a tag
func LookupKind(kind MessageKind) (KindInfo, bool) {
	info := kindsByTag[kind]
	if info == nil {
		return KindInfo{}, false
	}
	return *info, true
}

// KindByName maps a kind name such as "set_exposure" to its tag
func KindByName(name string) (MessageKind, bool) {
	info, ok := kindsByName[name]
	if !ok {
		return 0, false
	}
	return info.Kind, true
}

// FieldDescriptor returns the payload descriptor of a kind, or nil when the
// kind carries no payload or is not registered
func FieldDescriptor(kind MessageKind) *PayloadDescriptor {
	if info := kindsByTag[kind]; info != nil {
		return info.Descriptor
	}
	return nil
}

// NewPayload returns a zero payload for kind, or nil for payload-less kinds
func NewPayload(kind MessageKind) Payload {
	if d := FieldDescriptor(kind); d != nil {
		return d.New()
	}
	return nil
}

// MaxPayloadSize is the largest payload in the registry
func MaxPayloadSize() int {
	return maxPayload
}

func (k MessageKind) String() string {
	if info := kindsByTag[k]; info != nil {
		return info.Name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Category returns the kind's category, zero when unregistered
func (k MessageKind) Category() Category {
	if info := kindsByTag[k]; info != nil {
		return info.Category
	}
	return 0
}

// Registered reports whether k has a registry entry
func (k MessageKind) Registered() bool {
	return kindsByTag[k] != nil
}
