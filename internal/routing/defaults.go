package routing

// DefaultTable is the SAP log taxonomy. Containers are literal names.
func DefaultTable() Table {
	return Table{
		Rules: []Rule{
			// SAP DSP
			{Prefix: "audit_log_kpmgukdsp", Container: "sap-dsp", Subfolder: "audit"},
			{Prefix: "event_log_kpmgukdsp", Container: "sap-dsp", Subfolder: "event"},
			{Prefix: "app_log_kpmgukdsp", Container: "sap-dsp", Subfolder: "spaces-db"},
			// SAP CIS
			{Prefix: "audit_log_kpmgukcis", Container: "sap-cis", Subfolder: "audit"},
			{Prefix: "event_log_kpmgukcis", Container: "sap-cis", Subfolder: "event"},
			// SAP IAG
			{Prefix: "audit_log_kpmgukiag", Container: "sap-iag", Subfolder: "audit"},
			{Prefix: "event_log_kpmgukiag", Container: "sap-iag", Subfolder: "event"},
			// SAP MRM
			{Prefix: "audit_log_kpmgukmrm", Container: "sap-mrm", Subfolder: "audit"},
			{Prefix: "event_log_kpmgukmrm", Container: "sap-mrm", Subfolder: "event"},
			// SAP BTP-ABAP
			{Prefix: "audit_log_kpmguks4", Container: "sap-btp-abap", Subfolder: "audit"},
			{Prefix: "event_log_kpmguks4", Container: "sap-btp-abap", Subfolder: "event"},
		},
		Fallback: Destination{Container: FallbackContainer, Subfolder: FallbackSubfolder},
	}
}
