package contracts

type InputFlags struct {
	Tool       string
	Inputs     []string
	OutputDir  string
	ConfigPath string
	Params     Params
	Workers    int
	List       bool
}
