// Package establishment defines the declaration data returned for one
// establishment by the declarations API.
package establishment

// Identity is the resolved identity of an establishment, immutable for the
// duration of one synthesis load.
type Identity struct {
	Siret            string `json:"siret"`
	InternalID       int64  `json:"id"`
	DisplayName      string `json:"raisonSociale"`
	IsTempWorkAgency bool   `json:"ett"`
}

// Info is the establishment card shown at the top of the synthesis.
type Info struct {
	Siret              string  `json:"siret"`
	DisplayName        string  `json:"raisonSociale"`
	Address            string  `json:"adresse"`
	PostalCode         string  `json:"codePostal"`
	City               string  `json:"commune"`
	NafCode            string  `json:"codeNaf"`
	NafLabel           string  `json:"libelleNaf"`
	CollectiveAgrement *string `json:"conventionCollective,omitempty"`
	IsOpen             bool    `json:"ouvert"`
	FirstDeclaration   *string `json:"premiereDeclaration,omitempty"`
	LastDeclaration    *string `json:"derniereDeclaration,omitempty"`
	ContractCount      int     `json:"nombreContrats"`
}

// HeadcountSample is the last known headcount for a month.
type HeadcountSample struct {
	Month     string  `json:"mois"`
	Headcount float64 `json:"effectif"`
}

// HeadcountPoint is one month of the headcount-over-time indicator.
type HeadcountPoint struct {
	Month         string  `json:"mois"`
	Headcount     float64 `json:"effectif"`
	FullTimeRatio float64 `json:"etp"`
}

// HeadcountSeries is the headcount-over-time indicator.
type HeadcountSeries struct {
	Points []HeadcountPoint `json:"points"`
}

// ContractNatureShare is the share of one contract nature (CDI, CDD, ...).
type ContractNatureShare struct {
	Code       string  `json:"code"`
	Label      string  `json:"libelle"`
	Count      int     `json:"nombre"`
	Proportion float64 `json:"proportion"`
}

// ContractNatureBreakdown is the contract-nature indicator.
type ContractNatureBreakdown struct {
	Natures []ContractNatureShare `json:"natures"`
}

// JobShare is the share of one job title, possibly the result of merged titles.
type JobShare struct {
	JobTitleIDs []int64 `json:"posteIds"`
	Label       string  `json:"libelle"`
	Count       int     `json:"nombre"`
	Proportion  float64 `json:"proportion"`
}

// JobProportion is the job-proportion indicator.
type JobProportion struct {
	Jobs []JobShare `json:"postes"`
}
