package lite

// Operation codes.
const (
	OpJoin          = 255
	OpLeave         = 254
	OpRaiseEvent    = 253
	OpSetProperties = 252
	OpGetProperties = 251
	OpChangeGroups  = 248
)

// Event codes.
const (
	EvJoin              = 255
	EvLeave             = 254
	EvPropertiesChanged = 253
)

// Parameter keys.
const (
	KeyGameID          = 255 // also the room name
	KeyActorNr         = 254
	KeyTargetActorNr   = 253
	KeyActorList       = 252
	KeyProperties      = 251
	KeyBroadcast       = 250
	KeyActorProperties = 249
	KeyGameProperties  = 248
	KeyCache           = 247
	KeyReceiverGroup   = 246
	KeyData            = 245
	KeyCode            = 244
	KeyGroup           = 240
	KeyRemove          = 239
	KeyAdd             = 238
)

// KeyRoomName is an alias of KeyGameID.
const KeyRoomName = KeyGameID

// PropertyType selects which property set a get-properties request reads.
type PropertyType int

const (
	PropertyTypeGame  PropertyType = 1
	PropertyTypeActor PropertyType = 2
	PropertyTypeBoth  PropertyType = 3
)

// ReceiverGroup selects who receives a raised event.
type ReceiverGroup int

const (
	ReceiverOthers ReceiverGroup = 0
	ReceiverAll    ReceiverGroup = 1
	ReceiverMaster ReceiverGroup = 2
)

// CacheOperation controls server-side event caching.
type CacheOperation int

const (
	CacheDoNotCache     CacheOperation = 0
	CacheMergeCache     CacheOperation = 1
	CacheReplaceCache   CacheOperation = 2
	CacheRemoveCache    CacheOperation = 3
	CacheAddToRoomCache CacheOperation = 4
)

// NamePropertyKey is the actor property holding the display name.
const NamePropertyKey = "255"
