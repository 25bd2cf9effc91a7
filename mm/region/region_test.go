package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Region_Packing(t *testing.T) {
	r := New(0x12345678, ACPINVS)
	require.Equal(t, uint64(0x12345000), r.Start())
	require.Equal(t, ACPINVS, r.Type())
	require.False(t, r.Managed())

	r = r.WithManaged(true).WithType(Kernel).WithStart(0x200000)
	require.Equal(t, uint64(0x200000), r.Start())
	require.Equal(t, Kernel, r.Type())
	require.True(t, r.Managed())
	require.False(t, r.WithManaged(false).Managed())
}

func Test_Region_TypeNames(t *testing.T) {
	cases := map[Type]string{
		None:            "None",
		Available:       "Available",
		FirmwareTable:   "Multiboot2 Table",
		Kernel:          "Kernel",
		ACPIReclaimable: "ACPI Reclaimable",
		ACPINVS:         "ACPI Non Volatile",
		Reserved:        "Reserved",
		Type(7):         "<Unknown>",
	}
	for typ, name := range cases {
		require.Equal(t, name, typ.String())
	}

	got, err := ParseType("ACPI Reclaimable")
	require.NoError(t, err)
	require.Equal(t, ACPIReclaimable, got)
	got, err = ParseType("avail")
	require.NoError(t, err)
	require.Equal(t, Available, got)
	_, err = ParseType("ram")
	require.Error(t, err)
}
