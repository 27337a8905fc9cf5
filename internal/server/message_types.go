package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

const (
	// Client to server messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateTable MessageType = "create_table"
	MessageTypeJoinTable   MessageType = "join_table"
	MessageTypeLeaveTable  MessageType = "leave_table"
	MessageTypeStartGame   MessageType = "start_game"
	MessageTypeHit         MessageType = "hit"
	MessageTypeStand       MessageType = "stand"
	MessageTypeSplit       MessageType = "split"
	MessageTypeCancelTable MessageType = "cancel_table"
	MessageTypeBalance     MessageType = "balance"
	MessageTypeHistory     MessageType = "history"
	MessageTypeListTables  MessageType = "list_tables"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeTableState   MessageType = "table_state"
	MessageTypeRoundResult  MessageType = "round_result"
	MessageTypeTableList    MessageType = "table_list"
	MessageTypeTableClosed  MessageType = "table_closed"
	MessageTypeError        MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
