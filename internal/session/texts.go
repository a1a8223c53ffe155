package session

// Text shown to the client. The &cRGB sequences are colour escapes understood
// by ezQuake-style clients and pass through other clients as plain text.
const (
	textBanner          = "\n&c07f[Go] &c0f0Login module &cf00v1.0"
	textCredentialsHint = "\nValid credentials are:\n&cff0username: <whatever>\npassword: %s\n"
	textAccountHint     = "\nLog in with your registered username and password.\n"
	textUsernamePrompt  = "Type your username:"
	textPasswordPrompt  = "Type your password %s:"
	textLoginFailed     = "&cf70Login failed!"
	textCapabilities    = "Your allow_f_cmdline and allow_f_system are now set to 1."
	textJoinBroadcast   = "%s logged in successfully."
	textDenied          = "&cf00%s must be enabled in order to join this server.\nSorry!"
	textProbeTimeout    = "&cf00No reply while checking %s, disconnecting."
	textDebugEcho       = "Received opcode: [%s] data: [%s]"
	textAbout           = "&c07fLogin module written by mihawk 2020."
	textAnnoyOn         = "&c07fAnnoyance enabled!"
	textAnnoyOff        = "&c07fAnnoyance disabled!"
	textDisconnected    = "&cf00You were disconnected!!!"
)

// Greeting burst sent on every idle poll while the annoyance flag is set.
const (
	textAnnoyCenter    = "Hello %s! in your face"
	textAnnoyConsole   = "Hello %s! for you only"
	textAnnoyBroadcast = "Hello %s! for everybody"
	textAnnoyServer    = "say Hello %s! from server"
	textAnnoyClient    = "say Hello %s! from myself"
)

// Client commands granting extended capabilities after login.
var capabilityCommands = []string{
	"allow_f_cmdline 1",
	"allow_f_system 1",
}

// In-game commands recognised in steady state.
const (
	cmdBye   = "!bye"
	cmdAbout = "!about"
	cmdHello = "!hello"
)
