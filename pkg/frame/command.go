package frame

// Commands and qualifiers understood by the auth hub.
const (
	CmdNull  uint8 = 0
	CmdBasic uint8 = 1

	// CmdNull qualifiers.
	QlfDescribe     uint8 = 0
	QlfIdentify     uint8 = 1
	QlfAuthenticate uint8 = 2

	// CmdBasic qualifiers.
	QlfRegister  uint8 = 0
	QlfGetKey    uint8 = 1
	QlfFindRoot  uint8 = 2
	QlfBootstrap uint8 = 3
)

// Status values.
const (
	StatusRequest  uint8 = 0
	StatusAccepted uint8 = 1
	StatusRejected uint8 = 127
)
