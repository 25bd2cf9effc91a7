// Package bootinfo decodes what the boot loader hands the kernel: the
// firmware memory map and a description of the loaded kernel image.
//
// Memory maps arrive in one of three encodings:
//
//   - E820: a u64 entry count followed by 24-byte {base, length, type, acpi}
//     records, as left by the stage-2 loader at its known boot address
//   - Multiboot2: the boot-protocol information table; the memory-map tag
//     (type 6) and ELF-sections tag (type 9) are decoded
//   - text: one "base length type [acpi]" line per entry, for tooling
//
// All three produce []region.Entry for region.Translate. Malformed input is
// reported as an error; the kernel treats it as fatal at boot.
package bootinfo
